package util

import (
	"bytes"
	"io"
	"sync"
)

// PrefixWriter writes each line written to it to an underlying writer, prefixed with a fixed string.
// Partial lines are buffered until they are completed or Flush is called. Several PrefixWriters may
// share one underlying writer; lines are never interleaved as long as they share mu.
type PrefixWriter struct {
	w      io.Writer
	mu     *sync.Mutex
	prefix []byte
	buf    bytes.Buffer
}

func NewPrefixWriter(w io.Writer, mu *sync.Mutex, prefix string) *PrefixWriter {
	if mu == nil {
		mu = &sync.Mutex{}
	}
	return &PrefixWriter{w: w, mu: mu, prefix: []byte(prefix)}
}

func (p *PrefixWriter) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf.Write(data)
	for {
		i := bytes.IndexByte(p.buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := p.buf.Next(i + 1)
		if err := p.writeLine(line); err != nil {
			return len(data), err
		}
	}
	return len(data), nil
}

// Flush writes any buffered partial line, terminating it with a newline.
func (p *PrefixWriter) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.buf.Len() == 0 {
		return nil
	}
	line := append(p.buf.Next(p.buf.Len()), '\n')
	return p.writeLine(line)
}

func (p *PrefixWriter) writeLine(line []byte) error {
	if _, err := p.w.Write(p.prefix); err != nil {
		return err
	}
	_, err := p.w.Write(line)
	return err
}

// MultiWriteCloser writes to every writer and closes every writer, returning the first error.
type MultiWriteCloser struct {
	io.Writer
	Writers []io.WriteCloser
}

func NewMultiWriteCloser(writers ...io.WriteCloser) *MultiWriteCloser {
	ws := make([]io.Writer, len(writers))
	for i, w := range writers {
		ws[i] = w
	}
	return &MultiWriteCloser{Writer: io.MultiWriter(ws...), Writers: writers}
}

func (w *MultiWriteCloser) Close() error {
	var firstErr error
	for _, wc := range w.Writers {
		if err := wc.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NopWriteCloser wraps a writer, such as os.Stderr, that must not be closed.
type NopWriteCloser struct {
	io.Writer
}

func (NopWriteCloser) Close() error {
	return nil
}
