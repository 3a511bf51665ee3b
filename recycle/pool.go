// Package recycle provides a size-classed pool of byte buffers for the
// per-client read path. Gibson's reactor reads one request frame per
// buffer and hands it straight to the query processor; pooling those
// buffers avoids an allocation per frame under steady load. Buffers
// handed out by the pool are never counted against stats.Memused —
// that counter tracks bytes attributable to cached items, not
// transient I/O staging (see alloc.Shim).
package recycle

import "sync"

// MaxChunkSize is the largest single buffer the pool will hand out from
// a pooled size class; requests larger than this fall back to a plain
// allocation that is not returned to any pool on Close.
const MaxChunkSize = 1 << 20 // 1 MiB

// classSizes are the size classes the pool maintains, smallest first.
// A Get(n) call rounds n up to the first class that fits it.
var classSizes = []int{64, 256, 1024, 4096, 16384, 65536, 262144, MaxChunkSize}

// Pool hands out Data buffers sized to the nearest size class at or
// above the requested length, and recycles them through per-class
// sync.Pools on Close.
type Pool struct {
	classes []sync.Pool
}

// NewPool constructs a Pool with one sync.Pool per size class.
func NewPool() *Pool {
	p := &Pool{classes: make([]sync.Pool, len(classSizes))}
	for i, size := range classSizes {
		size := size
		p.classes[i].New = func() interface{} {
			return make([]byte, size)
		}
	}
	return p
}

// MaxChunkSize reports the largest buffer this pool will recycle.
func (p *Pool) MaxChunkSize() int { return MaxChunkSize }

// Data is a borrowed, possibly-pooled byte buffer. Callers must call
// Close when done; Close is a no-op-safe way to either return the
// buffer to its size class or let it be garbage collected.
type Data struct {
	buf   []byte
	class int // index into classSizes, or -1 if not pooled
	pool  *Pool
}

// Get returns a Data buffer of length n. Buffers larger than
// MaxChunkSize are allocated directly and not pooled.
func (p *Pool) Get(n int) Data {
	for i, size := range classSizes {
		if n <= size {
			buf := p.classes[i].Get().([]byte)
			if cap(buf) < n {
				buf = make([]byte, size)
			}
			return Data{buf: buf[:n], class: i, pool: p}
		}
	}
	return Data{buf: make([]byte, n), class: -1, pool: p}
}

// Bytes returns the buffer's current contents.
func (d Data) Bytes() []byte { return d.buf }

// Close returns the buffer to its size class, if pooled.
func (d Data) Close() {
	if d.class < 0 || d.pool == nil {
		return
	}
	d.pool.classes[d.class].Put(d.buf[:cap(d.buf)])
}
