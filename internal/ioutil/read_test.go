package ioutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadLimited(t *testing.T) {
	t.Run("reads content up to limit", func(t *testing.T) {
		body, err := ReadLimited(strings.NewReader("hello world"), 1024)
		require.NoError(t, err)
		assert.Equal(t, "hello world", string(body))
	})

	t.Run("exact limit is allowed", func(t *testing.T) {
		body, err := ReadLimited(strings.NewReader("hello"), 5)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(body))
	})

	t.Run("oversized body fails", func(t *testing.T) {
		_, err := ReadLimited(strings.NewReader("hello world"), 5)
		assert.ErrorContains(t, err, "exceeds 5 bytes")
	})

	t.Run("empty reader", func(t *testing.T) {
		body, err := ReadLimited(strings.NewReader(""), 1024)
		require.NoError(t, err)
		assert.Empty(t, body)
	})

	t.Run("read error is returned", func(t *testing.T) {
		_, err := ReadLimited(&failingReader{err: fmt.Errorf("connection reset")}, 1024)
		assert.ErrorContains(t, err, "connection reset")
	})
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "abc", Preview([]byte("abc"), 10))
	assert.Equal(t, "ab...(truncated)", Preview([]byte("abcdef"), 2))
}

type failingReader struct {
	err error
}

func (r *failingReader) Read(_ []byte) (int, error) {
	return 0, r.err
}
