package util

import (
	"encoding/hex"
	"hash"
	"io"
)

// HashingReader counts and hashes the bytes read through it.
type HashingReader struct {
	reader io.Reader
	hasher hash.Hash
	count  uint64
}

func NewHashingReader(reader io.Reader, hasher hash.Hash) *HashingReader {
	return &HashingReader{
		reader: reader,
		hasher: hasher,
	}
}

func (s *HashingReader) Read(p []byte) (int, error) {
	n, err := s.reader.Read(p)
	if n > 0 {
		s.count += uint64(n)
		s.hasher.Write(p[:n])
	}
	return n, err
}

// Count returns the number of bytes read so far.
func (s *HashingReader) Count() uint64 {
	return s.count
}

// HexSum returns the hex encoded hash of the bytes read so far.
func (s *HashingReader) HexSum() string {
	return hex.EncodeToString(s.hasher.Sum(nil))
}
