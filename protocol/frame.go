package protocol

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/facebookgo/stackerr"
)

// ErrFrameTooLarge is returned by ReadRequestFrame when a client's
// declared frame size exceeds the configured limit — spec.md §6's
// "a request whose declared size exceeds max_request_size is rejected
// and the connection is dropped," surfaced here rather than read, so
// the reactor never allocates the oversized buffer in the first place.
var ErrFrameTooLarge = stackerr.Newf("protocol: frame size exceeds limit")

// ErrShortFrame is returned when a declared size is too small to hold
// even the 2-byte opcode that every request frame carries.
var ErrShortFrame = stackerr.Newf("protocol: frame size shorter than opcode")

const sizeFieldLen = 4
const opcodeFieldLen = 2

// ReadRequestFrame reads one request frame from r: a little-endian u32
// size (the byte count of everything that follows: opcode + payload),
// then that many bytes. maxSize enforces max_request_size.
//
// This mirrors the teacher's conn.go WAITING_SIZE/WAITING_BUFFER split
// (read a fixed-size header, then read exactly as many body bytes as
// it names) collapsed into one blocking call, since Gibson's reactor
// gives each connection its own goroutine rather than multiplexing
// reads through a single epoll loop.
func ReadRequestFrame(r io.Reader, maxSize int) (Opcode, []byte, error) {
	var sizeBuf [sizeFieldLen]byte
	if _, err := io.ReadFull(r, sizeBuf[:]); err != nil {
		return 0, nil, err
	}
	size := binary.LittleEndian.Uint32(sizeBuf[:])
	if size < opcodeFieldLen {
		return 0, nil, ErrShortFrame
	}
	if maxSize > 0 && int(size) > maxSize {
		return 0, nil, ErrFrameTooLarge
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, err
	}
	op := Opcode(binary.LittleEndian.Uint16(body[:opcodeFieldLen]))
	return op, body[opcodeFieldLen:], nil
}

// WriteReplyFrame writes one reply frame to w: a little-endian u32
// size (2 + len(payload)), a little-endian u16 reply code, then
// payload.
func WriteReplyFrame(w io.Writer, code ReplyCode, payload []byte) error {
	size := opcodeFieldLen + len(payload)
	var header [sizeFieldLen + opcodeFieldLen]byte
	binary.LittleEndian.PutUint32(header[:sizeFieldLen], uint32(size))
	binary.LittleEndian.PutUint16(header[sizeFieldLen:], uint16(code))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

// ErrMalformed reports that a frame's payload doesn't match the shape
// its opcode requires — always a protocol violation, never a user
// data error, so the reactor drops the connection rather than framing
// a reply.
type ErrMalformed struct {
	Op     Opcode
	Reason string
}

func (e *ErrMalformed) Error() string {
	return fmt.Sprintf("protocol: malformed %s payload: %s", e.Op, e.Reason)
}
