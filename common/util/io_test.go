package util

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrefixWriter(t *testing.T) {
	var (
		out bytes.Buffer
		mu  sync.Mutex
	)
	a := NewPrefixWriter(&out, &mu, "[a] ")
	b := NewPrefixWriter(&out, &mu, "[b] ")

	_, err := a.Write([]byte("hello "))
	require.NoError(t, err)
	_, err = b.Write([]byte("one\ntwo\n"))
	require.NoError(t, err)
	_, err = a.Write([]byte("world\npartial"))
	require.NoError(t, err)
	require.NoError(t, a.Flush())
	require.NoError(t, b.Flush())

	require.Equal(t, "[b] one\n[b] two\n[a] hello world\n[a] partial\n", out.String())
}

func TestMultiWriteCloser(t *testing.T) {
	var one, two bytes.Buffer
	w := NewMultiWriteCloser(NopWriteCloser{&one}, NopWriteCloser{&two})
	_, err := w.Write([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.Equal(t, "data", one.String())
	require.Equal(t, "data", two.String())
}
