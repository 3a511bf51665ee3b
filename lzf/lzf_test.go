package lzf_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/traxacun/gibson/lzf"
)

func TestRoundTrip(t *testing.T) {
	src := bytes.Repeat([]byte{0x00}, 5000)
	dst := make([]byte, lzf.MaxCompressedLen(len(src)))
	n, err := lzf.Compress(dst, src)
	require.NoError(t, err)
	require.Greater(t, n, 0)
	require.Less(t, n, len(src), "compressible input should shrink")

	back := make([]byte, len(src))
	m, err := lzf.Decompress(back, dst[:n])
	require.NoError(t, err)
	require.Equal(t, src, back[:m])
}

func TestCompressOutputTooSmall(t *testing.T) {
	src := []byte("hello world")
	n, err := lzf.Compress(make([]byte, 1), src)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestDecompressCorruptInput(t *testing.T) {
	dst := make([]byte, 16)
	_, err := lzf.Decompress(dst, []byte{0xff, 0xff, 0xff})
	require.ErrorIs(t, err, lzf.ErrCorruptInput)
}
