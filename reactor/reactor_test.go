package reactor_test

import (
	"context"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/traxacun/gibson/alloc"
	"github.com/traxacun/gibson/cache"
	"github.com/traxacun/gibson/config"
	"github.com/traxacun/gibson/item"
	"github.com/traxacun/gibson/log"
	"github.com/traxacun/gibson/protocol"
	"github.com/traxacun/gibson/query"
	"github.com/traxacun/gibson/reactor"
	"github.com/traxacun/gibson/stats"
)

func newEngine(t *testing.T) *reactor.Engine {
	t.Helper()
	st := stats.New()
	lg := log.NewLogger(log.ErrorLevel, io.Discard)
	sh := alloc.New(st, lg)
	c := cache.New(sh, st, item.CompressionConfig{Threshold: 1024})
	proc := query.New(c, query.Limits{MaxKeySize: 250, MaxValueSize: 1 << 20}, lg)
	return reactor.NewEngine(proc, lg)
}

func TestEngineSubmitRoundTrip(t *testing.T) {
	engine := newEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx, nil)

	reply, ok, err := engine.Submit(ctx, protocol.Request{
		Opcode: protocol.OpSet,
		Key:    []byte("foo"),
		Value:  []byte("bar"),
	}, time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, protocol.ReplyOK, reply.Code)

	reply, ok, err = engine.Submit(ctx, protocol.Request{Opcode: protocol.OpGet, Key: []byte("foo")}, time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, protocol.EncodeValue(0, []byte("bar")), reply.Payload)
}

func TestEngineRejectsOversizedKey(t *testing.T) {
	engine := newEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx, nil)

	bigKey := make([]byte, 1000)
	_, ok, err := engine.Submit(ctx, protocol.Request{Opcode: protocol.OpGet, Key: bigKey}, time.Now())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEngineTick(t *testing.T) {
	engine := newEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticked := make(chan time.Time, 1)
	go engine.Run(ctx, func(now time.Time) { ticked <- now })

	now := time.Now()
	engine.Tick(ctx, now)
	select {
	case got := <-ticked:
		require.Equal(t, now, got)
	case <-time.After(time.Second):
		t.Fatal("tick never observed")
	}
}

// TestServeOverSocket is the one real-socket smoke test: it drives a
// full SET/GET round trip through an actual TCP listener, exercising
// frame encoding on both ends instead of only the in-process Engine
// API the other tests use.
func TestServeOverSocket(t *testing.T) {
	st := stats.New()
	lg := log.NewLogger(log.ErrorLevel, io.Discard)
	sh := alloc.New(st, lg)
	c := cache.New(sh, st, item.CompressionConfig{Threshold: 1024})
	proc := query.New(c, query.Limits{MaxKeySize: 250, MaxValueSize: 1 << 20}, lg)
	engine := reactor.NewEngine(proc, lg)

	cfg := config.Default()
	cfg.Address = "127.0.0.1"
	cfg.Port = 0 // OS-assigned; overwritten by the listener returned below
	cfg.MaxClients = 4

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ln.Close() // just to pick a free port
	cfg.Port = ln.Addr().(*net.TCPAddr).Port

	srv := reactor.NewServer(cfg, engine, st, lg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx, nil)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ctx) }()

	var conn net.Conn
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("tcp", net.JoinHostPort(cfg.Address, strconv.Itoa(cfg.Port)))
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.NoError(t, err)
	defer conn.Close()

	setPayload := encodeSet("k", 0, "v")
	require.NoError(t, writeRequest(conn, protocol.OpSet, setPayload))
	code, _, err := readReply(conn)
	require.NoError(t, err)
	require.Equal(t, protocol.ReplyOK, code)

	getPayload := encodeKey("k")
	require.NoError(t, writeRequest(conn, protocol.OpGet, getPayload))
	code, payload, err := readReply(conn)
	require.NoError(t, err)
	require.Equal(t, protocol.ReplyVal, code)
	require.Equal(t, protocol.EncodeValue(0, []byte("v")), payload)
}

func encodeKey(key string) []byte {
	return appendU32Field(nil, []byte(key))
}

func encodeSet(key string, ttlSeconds int32, value string) []byte {
	dst := appendU32Field(nil, []byte(key))
	dst = appendI32(dst, ttlSeconds)
	return appendU32Field(dst, []byte(value))
}

func appendU32Field(dst []byte, field []byte) []byte {
	var l [4]byte
	for i := 0; i < 4; i++ {
		l[i] = byte(len(field) >> (8 * i))
	}
	dst = append(dst, l[:]...)
	return append(dst, field...)
}

func appendI32(dst []byte, v int32) []byte {
	var b [4]byte
	for i := 0; i < 4; i++ {
		b[i] = byte(uint32(v) >> (8 * i))
	}
	return append(dst, b[:]...)
}

func writeRequest(w io.Writer, op protocol.Opcode, payload []byte) error {
	size := 2 + len(payload)
	var header [6]byte
	for i := 0; i < 4; i++ {
		header[i] = byte(uint32(size) >> (8 * i))
	}
	header[4] = byte(op)
	header[5] = byte(op >> 8)
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readReply(r io.Reader) (protocol.ReplyCode, []byte, error) {
	var header [6]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}
	size := uint32(header[0]) | uint32(header[1])<<8 | uint32(header[2])<<16 | uint32(header[3])<<24
	code := protocol.ReplyCode(uint16(header[4]) | uint16(header[5])<<8)
	payload := make([]byte, size-2)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	return code, payload, nil
}
