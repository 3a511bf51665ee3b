// Package query is the dispatcher spec.md §4.5 calls the "query
// processor": it validates a decoded protocol.Request against the
// configured size limits, calls the matching cache.Cache method, and
// frames the result into a Reply.
//
// Grounded on the teacher's handler.go, which performs exactly this
// job for the three memcached text commands it supports (validate,
// call into cache, write a response line); here it is generalized to
// Gibson's full single-key/multi-key opcode set and binary reply
// frames.
package query

import (
	"errors"
	"strconv"
	"time"

	"github.com/traxacun/gibson/cache"
	"github.com/traxacun/gibson/item"
	"github.com/traxacun/gibson/log"
	"github.com/traxacun/gibson/protocol"
)

// ErrKeyTooLarge and ErrValueTooLarge are connection-level violations,
// not ordinary query outcomes: spec.md §6 has the reactor drop the
// connection rather than frame a reply when a client's key or value
// exceeds the configured limit, the same way ErrMalformed does for a
// structurally broken frame. ErrKeyTooLarge is also returned for an
// empty key.
var (
	ErrKeyTooLarge   = errors.New("query: key exceeds max_key_size")
	ErrValueTooLarge = errors.New("query: value exceeds max_value_size")
)

// Limits carries the ceilings Handle enforces before ever touching the
// cache (config.Config's MaxKeySize/MaxValueSize/MaxItemTTL).
type Limits struct {
	MaxKeySize   int
	MaxValueSize int

	// MaxItemTTL is spec.md §6's "Upper bound on any TTL": a TTL above
	// it is clamped, not rejected, the same way max_memory is a
	// pressure threshold rather than a hard write limit. Zero means
	// unbounded.
	MaxItemTTL time.Duration
}

// clampTTL enforces MaxItemTTL on any TTL-bearing request (spec.md §6).
// A TTL of 0 ("never expires") is left alone; a positive TTL above the
// configured ceiling is brought down to it rather than failing the
// request.
func (p *Processor) clampTTL(ttl time.Duration) time.Duration {
	if p.limits.MaxItemTTL > 0 && ttl > p.limits.MaxItemTTL {
		return p.limits.MaxItemTTL
	}
	return ttl
}

// Reply is a fully framed outcome: Code plus whatever payload that
// code's opcode requires, ready for protocol.WriteReplyFrame.
type Reply struct {
	Code    protocol.ReplyCode
	Payload []byte
}

func ok() Reply                 { return Reply{Code: protocol.ReplyOK} }
func val(p []byte) Reply        { return Reply{Code: protocol.ReplyVal, Payload: p} }
func kval(p []byte) Reply       { return Reply{Code: protocol.ReplyKVal, Payload: p} }
func notFound() Reply           { return Reply{Code: protocol.ReplyNotFound} }
func locked() Reply             { return Reply{Code: protocol.ReplyLocked} }
func nan() Reply                { return Reply{Code: protocol.ReplyNaN} }
func errReply(msg string) Reply { return Reply{Code: protocol.ReplyErr, Payload: []byte(msg)} }

// fromCacheErr maps a cache.Cache sentinel error onto its reply code.
func fromCacheErr(err error) Reply {
	switch {
	case errors.Is(err, cache.ErrNotFound):
		return notFound()
	case errors.Is(err, cache.ErrLocked):
		return locked()
	case errors.Is(err, cache.ErrNaN):
		return nan()
	default:
		return errReply(err.Error())
	}
}

// Processor is the server's single query dispatcher. Like Cache, it
// is only ever called from the reactor's engine goroutine.
type Processor struct {
	cache  *cache.Cache
	limits Limits
	log    log.Logger
}

// New builds a Processor over c.
func New(c *cache.Cache, limits Limits, lg log.Logger) *Processor {
	return &Processor{cache: c, limits: limits, log: lg.With("query")}
}

func (p *Processor) checkKey(key []byte) error {
	if len(key) == 0 || len(key) > p.limits.MaxKeySize {
		return ErrKeyTooLarge
	}
	return nil
}

func (p *Processor) checkValue(value []byte) error {
	if len(value) > p.limits.MaxValueSize {
		return ErrValueTooLarge
	}
	return nil
}

// Handle validates and executes one request. A non-nil error is
// always a connection-level violation the reactor must drop the
// connection for; everything else — including every semantic failure
// spec.md's error table lists — comes back as a Reply.
func (p *Processor) Handle(req protocol.Request, now time.Time) (Reply, error) {
	req.TTL = p.clampTTL(req.TTL)

	switch req.Opcode {
	case protocol.OpSet:
		if err := p.checkKey(req.Key); err != nil {
			return Reply{}, err
		}
		if err := p.checkValue(req.Value); err != nil {
			return Reply{}, err
		}
		if err := p.cache.Set(req.Key, req.Value, req.TTL, now); err != nil {
			return fromCacheErr(err), nil
		}
		return ok(), nil

	case protocol.OpTTL:
		if err := p.checkKey(req.Key); err != nil {
			return Reply{}, err
		}
		if err := p.cache.SetTTL(req.Key, req.TTL, now); err != nil {
			return fromCacheErr(err), nil
		}
		return ok(), nil

	case protocol.OpGet:
		if err := p.checkKey(req.Key); err != nil {
			return Reply{}, err
		}
		it, err := p.cache.Get(req.Key, now)
		if err != nil {
			return fromCacheErr(err), nil
		}
		return val(protocol.EncodeValue(encodingTag(it.Encoding), it.Bytes())), nil

	case protocol.OpDel:
		if err := p.checkKey(req.Key); err != nil {
			return Reply{}, err
		}
		if err := p.cache.Delete(req.Key, now); err != nil {
			return fromCacheErr(err), nil
		}
		return ok(), nil

	case protocol.OpInc, protocol.OpDec:
		if err := p.checkKey(req.Key); err != nil {
			return Reply{}, err
		}
		var n int64
		var err error
		if req.Opcode == protocol.OpInc {
			n, err = p.cache.Inc(req.Key, now)
		} else {
			n, err = p.cache.Dec(req.Key, now)
		}
		if err != nil {
			return fromCacheErr(err), nil
		}
		return val(protocol.EncodeValue(encodingTag(item.Number), strconv.AppendInt(nil, n, 10))), nil

	case protocol.OpLock:
		if err := p.checkKey(req.Key); err != nil {
			return Reply{}, err
		}
		if err := p.cache.Lock(req.Key, req.TTL, now); err != nil {
			return fromCacheErr(err), nil
		}
		return ok(), nil

	case protocol.OpUnlock:
		if err := p.checkKey(req.Key); err != nil {
			return Reply{}, err
		}
		if err := p.cache.Unlock(req.Key, now); err != nil {
			return fromCacheErr(err), nil
		}
		return ok(), nil

	case protocol.OpCount:
		if err := p.checkKey(req.Key); err != nil {
			return Reply{}, err
		}
		return val(protocol.EncodeCount(p.cache.Count(req.Key, now))), nil

	case protocol.OpMeta:
		if err := p.checkKey(req.Key); err != nil {
			return Reply{}, err
		}
		meta, err := p.cache.Meta(req.Key, now)
		if err != nil {
			return fromCacheErr(err), nil
		}
		return val(encodeMetaField(meta, req.Field)), nil

	case protocol.OpKeys:
		return kval(protocol.EncodeKeys(p.cache.Keys(req.Prefix, now))), nil

	case protocol.OpMSet:
		if err := p.checkValue(req.Value); err != nil {
			return Reply{}, err
		}
		return val(protocol.EncodeCount(p.cache.MSet(req.Prefix, req.Value, req.TTL, now))), nil

	case protocol.OpMTTL:
		return val(protocol.EncodeCount(p.cache.MSetTTL(req.Prefix, req.TTL, now))), nil

	case protocol.OpMGet:
		entries := p.cache.MGet(req.Prefix, now)
		kvs := make([]protocol.KeyValue, len(entries))
		for i, e := range entries {
			kvs[i] = protocol.KeyValue{Key: e.Key, Encoding: encodingTag(e.Item.Encoding), Value: e.Item.Bytes()}
		}
		return kval(protocol.EncodeMGet(kvs)), nil

	case protocol.OpMDel:
		return val(protocol.EncodeCount(p.cache.MDelete(req.Prefix, now))), nil

	case protocol.OpMInc:
		return val(protocol.EncodeCount(p.cache.MInc(req.Prefix, now))), nil

	case protocol.OpMDec:
		return val(protocol.EncodeCount(p.cache.MDec(req.Prefix, now))), nil

	case protocol.OpMLock:
		return val(protocol.EncodeCount(p.cache.MLock(req.Prefix, req.TTL, now))), nil

	case protocol.OpMUnlock:
		return val(protocol.EncodeCount(p.cache.MUnlock(req.Prefix, now))), nil

	case protocol.OpMCount:
		return val(protocol.EncodeCount(p.cache.MCount(req.Prefix, now))), nil

	default:
		return errReply("unsupported opcode"), nil
	}
}

func encodeMetaField(m cache.Meta, field protocol.MetaField) []byte {
	switch field {
	case protocol.MetaSize:
		return protocol.EncodeInt64(int64(m.Size))
	case protocol.MetaEncoding:
		return protocol.EncodeByte(encodingTag(m.Encoding))
	case protocol.MetaTTL:
		return protocol.EncodeInt64(int64(m.TTL / time.Second))
	case protocol.MetaLockRemaining:
		return protocol.EncodeInt64(int64(m.LockRemaining / time.Second))
	case protocol.MetaLastAccessAge:
		return protocol.EncodeInt64(int64(m.LastAccessAge / time.Second))
	default:
		return nil
	}
}

func encodingTag(e item.Encoding) byte {
	switch e {
	case item.Plain:
		return 0
	case item.Number:
		return 1
	case item.Compressed:
		return 2
	default:
		return 0xFF
	}
}
