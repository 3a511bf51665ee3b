// Package item implements the item model of spec.md §3/§4.4: the
// stored value plus its encoding, size, timestamps, TTL, and lock
// metadata, and the encoding policy applied at SET time.
//
// Grounded on the teacher's cache.Item/node pair in cache/lru.go: the
// fixed-overhead size accounting (extraSizePerNode) and the
// active/inactive bookkeeping there are generalized here from "has this
// been touched since the last LRU sweep" into the richer TTL/lock
// predicates spec.md §4.4 asks for.
package item

import (
	"strconv"
	"time"

	"github.com/traxacun/gibson/lzf"
)

// Encoding is the wire/storage tag for how an item's payload is held.
type Encoding uint8

const (
	Plain Encoding = iota
	Number
	Compressed
)

func (e Encoding) String() string {
	switch e {
	case Plain:
		return "PLAIN"
	case Number:
		return "NUMBER"
	case Compressed:
		return "COMPRESSED"
	default:
		return "UNKNOWN"
	}
}

// extraOverhead approximates the fixed bookkeeping cost of caching one
// item (the struct itself, trie node, map/slice housekeeping),
// mirroring the teacher's extraSizePerNode constant in cache/lru.go.
const extraOverhead = 96

// Item is the stored value plus its metadata.
type Item struct {
	Encoding Encoding
	data     []byte // owned buffer for Plain and Compressed
	number   int64  // inline value for Number
	origSize int    // original (uncompressed) length, for Compressed

	CreatedAt      time.Time
	LastAccessTime time.Time
	TTL            time.Duration // 0 means never expires
	LockedUntil    time.Time     // zero value means unlocked
}

// CompressionConfig carries the knob New's encoding policy needs.
type CompressionConfig struct {
	// Threshold is the minimum payload size LZF compression is
	// attempted on (config.Config.CompressionThreshold).
	Threshold int
}

// New builds an Item from a raw SET payload, applying spec.md §3's
// encoding policy: a value that parses as a signed 64-bit integer is
// stored as Number; otherwise, if it is large enough and LZF strictly
// shrinks it, it is stored Compressed; otherwise Plain.
func New(value []byte, ttl time.Duration, cfg CompressionConfig, now time.Time) *Item {
	it := &Item{CreatedAt: now, LastAccessTime: now, TTL: ttl}
	if n, ok := ParseInt64(value); ok {
		it.Encoding = Number
		it.number = n
		return it
	}
	if len(value) >= cfg.Threshold {
		if compressed, ok := tryCompress(value); ok {
			it.Encoding = Compressed
			it.data = compressed
			it.origSize = len(value)
			return it
		}
	}
	it.Encoding = Plain
	it.data = append([]byte(nil), value...)
	return it
}

func tryCompress(value []byte) ([]byte, bool) {
	dst := make([]byte, lzf.MaxCompressedLen(len(value)))
	n, err := lzf.Compress(dst, value)
	if err != nil || n == 0 || n >= len(value) {
		return nil, false
	}
	return dst[:n:n], true
}

// ParseInt64 reports whether value is the decimal ASCII form of a
// signed 64-bit integer, per spec.md §3's encoding policy and §4.5's
// "if PLAIN and the payload parses as an integer" numeric-op rule.
func ParseInt64(value []byte) (int64, bool) {
	if len(value) == 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(string(value), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Bytes returns the item's payload in external (decompressed) form,
// the "transparently decompressed into a server-owned buffer" step of
// spec.md §4.4. For Number items it returns the decimal ASCII form.
func (it *Item) Bytes() []byte {
	switch it.Encoding {
	case Number:
		return strconv.AppendInt(nil, it.number, 10)
	case Compressed:
		dst := make([]byte, it.origSize)
		n, err := lzf.Decompress(dst, it.data)
		if err != nil {
			// A stored item's compressed form is never corrupted by
			// anything other than a programmer error; surfacing empty
			// bytes here would silently look like an empty value, so
			// this path is only reachable if New or the item's data
			// was mutated out of band.
			panic("item: stored compressed payload is corrupt: " + err.Error())
		}
		return dst[:n]
	default:
		return it.data
	}
}

// Size is the logical size spec.md §3 defines: the length of data, or
// the byte-width of a number's decimal form.
func (it *Item) Size() int {
	switch it.Encoding {
	case Number:
		return len(strconv.AppendInt(nil, it.number, 10))
	case Compressed:
		return it.origSize
	default:
		return len(it.data)
	}
}

// StoredSize is the number of bytes actually held for this item's
// payload (after compression, where applicable) plus fixed overhead —
// what alloc.Shim should be charged for this item.
func (it *Item) StoredSize() int64 {
	switch it.Encoding {
	case Number:
		return extraOverhead
	default:
		return int64(len(it.data)) + extraOverhead
	}
}

// Number returns the inline integer and true if Encoding is Number.
func (it *Item) Number() (int64, bool) {
	if it.Encoding != Number {
		return 0, false
	}
	return it.number, true
}

// Touch refreshes LastAccessTime, called on every read or write that
// touches the item (spec.md §4.4).
func (it *Item) Touch(now time.Time) { it.LastAccessTime = now }

// Expired reports spec.md §4.4's expiry predicate.
func (it *Item) Expired(now time.Time) bool {
	return it.TTL > 0 && now.Sub(it.CreatedAt) >= it.TTL
}

// Locked reports spec.md §4.4's lock predicate.
func (it *Item) Locked(now time.Time) bool {
	return it.LockedUntil.After(now)
}

// Lock sets a write lock expiring in d.
func (it *Item) Lock(now time.Time, d time.Duration) { it.LockedUntil = now.Add(d) }

// Unlock clears any write lock.
func (it *Item) Unlock() { it.LockedUntil = time.Time{} }

// LockRemaining reports how much longer the lock lasts, for META.
func (it *Item) LockRemaining(now time.Time) time.Duration {
	if !it.Locked(now) {
		return 0
	}
	return it.LockedUntil.Sub(now)
}

// SetNumber re-encodes the item as Number with the given value,
// discarding any previous Plain/Compressed payload — used by INC/DEC
// when a Plain item's payload parses as an integer (spec.md §4.5).
func (it *Item) SetNumber(n int64) {
	it.Encoding = Number
	it.data = nil
	it.origSize = 0
	it.number = n
}

// Replace overwrites this item's payload in place (used by SET on an
// existing key so the trie node/marker identity, and any external
// references to it, are preserved).
func (it *Item) Replace(value []byte, ttl time.Duration, cfg CompressionConfig, now time.Time) {
	fresh := New(value, ttl, cfg, now)
	it.Encoding = fresh.Encoding
	it.data = fresh.data
	it.number = fresh.number
	it.origSize = fresh.origSize
	it.CreatedAt = now
	it.LastAccessTime = now
	it.TTL = ttl
}
