// Package lzf implements the two-function compression codec spec.md
// §4.2 asks for: Compress/Decompress over opaque byte buffers, used
// only by the item store when a value is large enough to attempt
// shrinking it (spec.md §3's encoding policy).
//
// The retrieval pack carries no package literally named "lzf"; the one
// general-purpose block compressor two of the example repos require
// directly (iotaledger-trie.go, vechain-thor) is github.com/golang/snappy,
// so that is what backs this codec. See DESIGN.md for the full
// rationale. The public surface — two functions, a "0 means it didn't
// fit" overflow signal, a corrupt-input error — is spec.md's, not
// snappy's; callers never see a snappy type.
package lzf

import (
	"github.com/facebookgo/stackerr"
	"github.com/golang/snappy"
)

// ErrOutputOverflow is returned by Decompress when dst is too small to
// hold the decompressed output. Compress never returns it.
var ErrOutputOverflow = stackerr.Newf("lzf: output buffer too small")

// ErrCorruptInput is returned when Decompress is given a buffer that
// does not parse as valid compressed data.
var ErrCorruptInput = stackerr.Newf("lzf: corrupt input")

// MaxCompressedLen returns an upper bound on the compressed size of a
// srcLen-byte input, for sizing a destination buffer ahead of Compress.
func MaxCompressedLen(srcLen int) int { return snappy.MaxEncodedLen(srcLen) }

// Compress writes the compressed form of src into dst and returns the
// number of bytes written. It returns (0, nil) whenever dst is shorter
// than MaxCompressedLen(len(src)) — following spec.md's "compress(...)
// -> written bytes or 0 if output would not fit" contract — even if the
// actual compressed output would have fit. It never returns an error.
func Compress(dst, src []byte) (int, error) {
	need := MaxCompressedLen(len(src))
	if len(dst) < need {
		return 0, nil
	}
	out := snappy.Encode(dst[:need], src)
	return len(out), nil
}

// Decompress writes the decompressed form of src into dst and returns
// the number of bytes written.
func Decompress(dst, src []byte) (int, error) {
	dlen, err := snappy.DecodedLen(src)
	if err != nil {
		return 0, ErrCorruptInput
	}
	if len(dst) < dlen {
		return 0, ErrOutputOverflow
	}
	out, err := snappy.Decode(dst[:dlen], src)
	if err != nil {
		return 0, ErrCorruptInput
	}
	return len(out), nil
}
