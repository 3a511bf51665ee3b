package protocol

import "encoding/binary"

// ReplyCode is the 2-byte little-endian status spec.md §6 places
// right after a reply frame's size prefix.
type ReplyCode uint16

const (
	ReplyOK ReplyCode = iota
	ReplyVal
	ReplyKVal
	ReplyNotFound
	ReplyLocked
	ReplyNaN
	ReplyErr
)

func (c ReplyCode) String() string {
	switch c {
	case ReplyOK:
		return "OK"
	case ReplyVal:
		return "VAL"
	case ReplyKVal:
		return "KVAL"
	case ReplyNotFound:
		return "NOT_FOUND"
	case ReplyLocked:
		return "LOCKED"
	case ReplyNaN:
		return "NAN"
	case ReplyErr:
		return "ERR"
	default:
		return "UNKNOWN"
	}
}

func putU32Field(dst []byte, field []byte) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(field)))
	dst = append(dst, lenBuf[:]...)
	return append(dst, field...)
}

// EncodeValue frames GET's payload: u8 encoding, u32 len, value bytes.
// encoding is one of the PLAIN/NUMBER/COMPRESSED tags spec.md §3
// defines; for a COMPRESSED item, value is already the decompressed
// bytes (spec.md §6: "A COMPRESSED reply's payload is the decompressed
// bytes; the encoding byte signals that the item was stored
// compressed, for diagnostics").
func EncodeValue(encoding byte, value []byte) []byte {
	dst := make([]byte, 0, 1+4+len(value))
	dst = append(dst, encoding)
	return putU32Field(dst, value)
}

// EncodeInt64 frames an 8-byte little-endian signed integer, used for
// the numeric META fields (size, ttl seconds, lock-remaining seconds,
// last-access-age seconds).
func EncodeInt64(n int64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(n))
	return buf[:]
}

// EncodeCount frames the "number of keys affected" payload every
// multi-key op except MGET (and COUNT/MCOUNT) replies with.
func EncodeCount(n int) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(n))
	return buf[:]
}

// EncodeByte frames a single-byte payload, used for META's ENCODING
// field.
func EncodeByte(b byte) []byte { return []byte{b} }

// EncodeKeys frames KEYS's KVAL payload: u32 count, then each key as
// u32 len + bytes.
func EncodeKeys(keys [][]byte) []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, uint32(len(keys)))
	for _, k := range keys {
		out = putU32Field(out, k)
	}
	return out
}

// KeyValue is one key/value pair as carried in an MGET reply.
type KeyValue struct {
	Key      []byte
	Encoding byte
	Value    []byte
}

// EncodeMGet frames MGET's KVAL payload: u32 count, then each entry as
// u32 keylen+key, u8 encoding, u32 vallen+value — spec.md §6's KVAL
// shape.
func EncodeMGet(entries []KeyValue) []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, uint32(len(entries)))
	for _, e := range entries {
		out = putU32Field(out, e.Key)
		out = append(out, e.Encoding)
		out = putU32Field(out, e.Value)
	}
	return out
}
