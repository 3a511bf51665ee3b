package reactor

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/facebookgo/stackerr"

	"github.com/traxacun/gibson/config"
	"github.com/traxacun/gibson/log"
	"github.com/traxacun/gibson/protocol"
	"github.com/traxacun/gibson/recycle"
	"github.com/traxacun/gibson/stats"
)

// Server listens for clients and feeds every decoded request into an
// Engine. One goroutine is spawned per accepted connection, mirroring
// the teacher's conn.serve() lifecycle; none of those goroutines ever
// touch cache state directly.
type Server struct {
	cfg    config.Config
	engine *Engine
	stats  *stats.Stats
	pool   *recycle.Pool
	log    log.Logger

	clients chan struct{} // capacity cfg.MaxClients; full means refuse
}

// NewServer builds a Server around engine.
func NewServer(cfg config.Config, engine *Engine, st *stats.Stats, lg log.Logger) *Server {
	max := cfg.MaxClients
	if max <= 0 {
		max = 1
	}
	return &Server{
		cfg:     cfg,
		engine:  engine,
		stats:   st,
		pool:    recycle.NewPool(),
		log:     lg.With("reactor"),
		clients: make(chan struct{}, max),
	}
}

// listen opens the configured transport: a Unix socket if UnixSocket
// is set, otherwise TCP on Address:Port — spec.md §6's two listed
// transports.
func (s *Server) listen() (net.Listener, error) {
	if s.cfg.UnixSocket != "" {
		return net.Listen("unix", s.cfg.UnixSocket)
	}
	addr := net.JoinHostPort(s.cfg.Address, strconv.Itoa(s.cfg.Port))
	return net.Listen("tcp", addr)
}

// Serve accepts connections until ctx is done. It is meant to run
// alongside Engine.Run in its own goroutine.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := s.listen()
	if err != nil {
		return stackerr.Wrap(err)
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.log.Infof("Listening on %s.", ln.Addr())
	for {
		rwc, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return stackerr.Wrap(err)
			}
		}
		if tc, ok := rwc.(*net.TCPConn); ok {
			tc.SetNoDelay(true)
			tc.SetKeepAlive(true)
		}

		select {
		case s.clients <- struct{}{}:
			s.stats.AddNclients(1)
			go s.serve(ctx, rwc)
		default:
			// max_clients reached: refuse the new connection outright
			// rather than queueing it, per spec.md §9's resolved open
			// question on client overflow.
			s.log.Warn("Refusing connection: max_clients reached.")
			rwc.Close()
		}
	}
}

func (s *Server) release() {
	<-s.clients
	s.stats.AddNclients(-1)
}

func (s *Server) serve(ctx context.Context, rwc net.Conn) {
	s.log.Debugf("Serve connection from %s.", rwc.RemoteAddr())
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("Panic serving %s: %v", rwc.RemoteAddr(), r)
		}
		rwc.Close()
		s.release()
		s.log.Debugf("Connection from %s closed.", rwc.RemoteAddr())
	}()

	for {
		if s.cfg.MaxIdleTime > 0 {
			rwc.SetReadDeadline(time.Now().Add(s.cfg.MaxIdleTime))
		}
		op, body, closeData, err := s.readFrame(rwc)
		if err != nil {
			if errors.Is(err, protocol.ErrFrameTooLarge) || errors.Is(err, protocol.ErrShortFrame) {
				s.log.Warnf("Bad frame size from %s: %v", rwc.RemoteAddr(), err)
			} else if !errors.Is(err, io.EOF) {
				s.log.Debugf("Read error from %s: %v", rwc.RemoteAddr(), err)
			}
			return
		}

		req, decErr := protocol.Decode(op, body)
		if decErr != nil {
			closeData()
			s.log.Warnf("Malformed frame from %s: %v", rwc.RemoteAddr(), decErr)
			return
		}

		// req.Key/Value/Prefix are sub-slices of body (protocol.Decode
		// does not copy): body must stay alive and untouched until
		// Submit returns, since the engine goroutine reads it while
		// handling the request. Returning it to the pool any earlier
		// would let a concurrent connection's readFrame overwrite the
		// same backing array mid-request.
		reply, ok, err := s.engine.Submit(ctx, req, time.Now())
		closeData()
		if err != nil {
			return
		}
		if !ok {
			s.log.Warnf("Rejecting %s from %s: limit exceeded.", req.Opcode, rwc.RemoteAddr())
			return
		}
		if s.cfg.MaxResponseSize > 0 && len(reply.Payload)+opcodeFieldLen > s.cfg.MaxResponseSize {
			// A KVAL reply over a very broad prefix (e.g. MGET on a
			// near-root prefix) can outgrow max_response_size even
			// though the request itself was small; there is no
			// partial-KVAL framing to fall back to, so the connection
			// is dropped the same way an oversized request would be.
			s.log.Warnf("Reply to %s from %s exceeds max_response_size (%d bytes), dropping connection.", req.Opcode, rwc.RemoteAddr(), len(reply.Payload))
			return
		}
		if err := protocol.WriteReplyFrame(rwc, reply.Code, reply.Payload); err != nil {
			s.log.Debugf("Write error to %s: %v", rwc.RemoteAddr(), err)
			return
		}
	}
}

const sizeFieldLen = 4
const opcodeFieldLen = 2

// readFrame mirrors protocol.ReadRequestFrame but borrows its body
// buffer from the server's recycle.Pool instead of allocating one per
// frame; the returned close func must be called once the caller is
// done reading body.
func (s *Server) readFrame(r io.Reader) (protocol.Opcode, []byte, func(), error) {
	var sizeBuf [sizeFieldLen]byte
	if _, err := io.ReadFull(r, sizeBuf[:]); err != nil {
		return 0, nil, func() {}, err
	}
	size := binary.LittleEndian.Uint32(sizeBuf[:])
	if size < opcodeFieldLen {
		return 0, nil, func() {}, protocol.ErrShortFrame
	}
	if s.cfg.MaxRequestSize > 0 && int(size) > s.cfg.MaxRequestSize {
		return 0, nil, func() {}, protocol.ErrFrameTooLarge
	}

	if int(size) > s.pool.MaxChunkSize() {
		s.log.Debugf("Frame of %d bytes exceeds pool class %d, allocating directly.", size, s.pool.MaxChunkSize())
	}
	data := s.pool.Get(int(size))
	if _, err := io.ReadFull(r, data.Bytes()); err != nil {
		data.Close()
		return 0, nil, func() {}, err
	}
	op := protocol.Opcode(binary.LittleEndian.Uint16(data.Bytes()[:opcodeFieldLen]))
	return op, data.Bytes()[opcodeFieldLen:], data.Close, nil
}
