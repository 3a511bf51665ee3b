// Package cache ties together the prefix trie (package trie) and the
// item store (package item) into the single mutable index spec.md §3
// calls "the trie" and §4.4 calls "the item store": every SET/GET/DEL/
// INC/DEC/LOCK/UNLOCK/TTL/COUNT/META/KEYS body and its multi-key
// counterpart lives here, operating on a trie.Tree[*item.Item].
//
// Cache is not safe for concurrent use. Per spec.md §5, exactly one
// goroutine — the reactor's engine loop — ever calls into a Cache;
// that is what lets every method below skip locking entirely, same as
// the teacher's single-threaded-by-construction conn/cache pairing.
//
// Grounded on the teacher's cache/lru.go shrink-with-callback shape:
// onExpire/onActive/onInactive there becomes SweepExpired/EvictIdle
// here, generalized from "walk a doubly-linked recency queue" to "walk
// the trie," and from strict LRU promotion to spec.md §4.7's idle-age
// threshold eviction.
package cache

import (
	"errors"
	"time"

	"github.com/traxacun/gibson/alloc"
	"github.com/traxacun/gibson/internal/tag"
	"github.com/traxacun/gibson/item"
	"github.com/traxacun/gibson/stats"
	"github.com/traxacun/gibson/trie"
)

// Semantic errors, mapped to reply codes by the query package
// (spec.md §4.5/§6): these never carry a stack trace, since they are
// ordinary outcomes a client is expected to handle, not diagnostics.
var (
	ErrNotFound = errors.New("not found")
	ErrLocked   = errors.New("locked")
	ErrNaN      = errors.New("not a number")
)

// Cache is the server's single storage index.
type Cache struct {
	tree  *trie.Tree[*item.Item]
	alloc *alloc.Shim
	stats *stats.Stats
	cfg   item.CompressionConfig
}

// New builds an empty Cache.
func New(sh *alloc.Shim, st *stats.Stats, cfg item.CompressionConfig) *Cache {
	return &Cache{tree: trie.New[*item.Item](), alloc: sh, stats: st, cfg: cfg}
}

// entry pairs a reconstructed absolute key with the item it names,
// the scratch-list shape spec.md §4.5 asks multi-ops to collect into
// before mutating ("m_keys, m_values") rather than mutating the trie
// mid-traversal.
type entry struct {
	key []byte
	it  *item.Item
}

// Entry is the public view of a matched key for multi-key reads.
type Entry struct {
	Key  []byte
	Item *item.Item
}

func (c *Cache) releaseAccounting(it *item.Item) {
	c.alloc.Release(it.StoredSize())
	c.stats.AddNitems(-1)
	if it.Encoding == item.Compressed {
		c.stats.AddNcompressed(-1)
	}
}

func (c *Cache) chargeAccounting(it *item.Item) {
	if tag.Debug && it.StoredSize() <= 0 {
		panic("cache: charging non-positive stored size")
	}
	c.alloc.Charge(it.StoredSize())
	c.stats.AddNitems(1)
	if it.Encoding == item.Compressed {
		c.stats.AddNcompressed(1)
	}
}

// chargeSwap re-accounts it across a mutation that may change its
// size or encoding (SET on an existing key, INC re-encoding PLAIN to
// NUMBER), without touching stats.Nitems — the item still exists,
// only its cost and compressed-ness may have changed.
func (c *Cache) chargeSwap(it *item.Item, apply func()) {
	wasCompressed := it.Encoding == item.Compressed
	c.alloc.Release(it.StoredSize())
	apply()
	c.alloc.Charge(it.StoredSize())
	isCompressed := it.Encoding == item.Compressed
	if wasCompressed && !isCompressed {
		c.stats.AddNcompressed(-1)
	}
	if !wasCompressed && isCompressed {
		c.stats.AddNcompressed(1)
	}
}

// find resolves key to its live item, deleting it in passing if it has
// expired (spec.md §4.4: "an expired item is deleted on access and the
// operation behaves as if the key were absent"), and touches it.
func (c *Cache) find(key []byte, now time.Time) (*item.Item, error) {
	it, ok := c.tree.Find(key)
	if !ok {
		return nil, ErrNotFound
	}
	if it.Expired(now) {
		c.tree.Delete(key)
		c.releaseAccounting(it)
		return nil, ErrNotFound
	}
	it.Touch(now)
	return it, nil
}

// findForWrite additionally enforces spec.md §4.4's lock predicate:
// "any mutating operation on a locked item fails with LOCKED."
func (c *Cache) findForWrite(key []byte, now time.Time) (*item.Item, error) {
	it, err := c.find(key, now)
	if err != nil {
		return nil, err
	}
	if it.Locked(now) {
		return nil, ErrLocked
	}
	return it, nil
}

// Set implements SET(ttl?, key, value). TTL of 0 means never expires.
func (c *Cache) Set(key, value []byte, ttl time.Duration, now time.Time) error {
	if existing, ok := c.tree.Find(key); ok {
		if existing.Locked(now) {
			return ErrLocked
		}
		c.chargeSwap(existing, func() { existing.Replace(value, ttl, c.cfg, now) })
		return nil
	}
	it := item.New(value, ttl, c.cfg, now)
	c.tree.Insert(key, it)
	c.chargeAccounting(it)
	return nil
}

// Get implements GET(key).
func (c *Cache) Get(key []byte, now time.Time) (*item.Item, error) {
	return c.find(key, now)
}

// Delete implements DEL(key).
func (c *Cache) Delete(key []byte, now time.Time) error {
	it, err := c.findForWrite(key, now)
	if err != nil {
		return err
	}
	c.tree.Delete(key)
	c.releaseAccounting(it)
	return nil
}

// SetTTL implements TTL(key, seconds).
func (c *Cache) SetTTL(key []byte, ttl time.Duration, now time.Time) error {
	it, err := c.findForWrite(key, now)
	if err != nil {
		return err
	}
	it.TTL = ttl
	return nil
}

// Lock implements LOCK(key, seconds). Locking is not itself subject to
// the lock precondition — see Unlock.
func (c *Cache) Lock(key []byte, d time.Duration, now time.Time) error {
	it, err := c.find(key, now)
	if err != nil {
		return err
	}
	it.Lock(now, d)
	return nil
}

// Unlock implements UNLOCK(key). It always succeeds on a present key,
// even while currently locked — that is how a client clears a lock.
func (c *Cache) Unlock(key []byte, now time.Time) error {
	it, err := c.find(key, now)
	if err != nil {
		return err
	}
	it.Unlock()
	return nil
}

// Count implements COUNT(key): 1 if present, 0 otherwise.
func (c *Cache) Count(key []byte, now time.Time) int {
	if _, err := c.find(key, now); err != nil {
		return 0
	}
	return 1
}

// Meta is the introspection record META(key, field) exposes.
type Meta struct {
	Size          int
	Encoding      item.Encoding
	TTL           time.Duration
	LockRemaining time.Duration
	LastAccessAge time.Duration
}

// Meta implements META(key, field): the processor (package query)
// picks which field of the returned Meta to frame into the reply.
func (c *Cache) Meta(key []byte, now time.Time) (Meta, error) {
	it, err := c.find(key, now)
	if err != nil {
		return Meta{}, err
	}
	return Meta{
		Size:          it.Size(),
		Encoding:      it.Encoding,
		TTL:           it.TTL,
		LockRemaining: it.LockRemaining(now),
		LastAccessAge: now.Sub(it.LastAccessTime),
	}, nil
}

func (c *Cache) addItem(it *item.Item, delta int64) (int64, error) {
	if it.Encoding == item.Number {
		n, _ := it.Number()
		result := n + delta
		it.SetNumber(result)
		return result, nil
	}
	n, ok := item.ParseInt64(it.Bytes())
	if !ok {
		return 0, ErrNaN
	}
	result := n + delta
	c.chargeSwap(it, func() { it.SetNumber(result) })
	return result, nil
}

func (c *Cache) add(key []byte, delta int64, now time.Time) (int64, error) {
	it, err := c.findForWrite(key, now)
	if err != nil {
		return 0, err
	}
	return c.addItem(it, delta)
}

// Inc implements INC(key).
func (c *Cache) Inc(key []byte, now time.Time) (int64, error) { return c.add(key, 1, now) }

// Dec implements DEC(key).
func (c *Cache) Dec(key []byte, now time.Time) (int64, error) { return c.add(key, -1, now) }

// collect resolves prefix once (spec.md §4.5) and gathers every live
// descendant key/item into a scratch slice, deleting any expired item
// it encounters along the way. It never mutates a live item's fields —
// callers apply the single-key body to each collected entry afterward,
// so a traversal in progress never sees a value it has already acted
// on change shape out from under it.
func (c *Cache) collect(prefix []byte, now time.Time) []entry {
	cur, ok := c.tree.FindPrefix(prefix)
	if !ok {
		return nil
	}
	var out []entry
	c.tree.Walk(cur, func(key []byte, it *item.Item) bool {
		if it.Expired(now) {
			c.releaseAccounting(it)
			return true
		}
		out = append(out, entry{key: append([]byte(nil), key...), it: it})
		return false
	})
	return out
}

// Keys implements KEYS(prefix).
func (c *Cache) Keys(prefix []byte, now time.Time) [][]byte {
	entries := c.collect(prefix, now)
	out := make([][]byte, len(entries))
	for i, e := range entries {
		out[i] = e.key
	}
	return out
}

// MGet implements MGET(prefix).
func (c *Cache) MGet(prefix []byte, now time.Time) []Entry {
	entries := c.collect(prefix, now)
	out := make([]Entry, len(entries))
	for i, e := range entries {
		e.it.Touch(now)
		out[i] = Entry{Key: e.key, Item: e.it}
	}
	return out
}

// MCount implements MCOUNT(prefix): the number of live keys under it.
func (c *Cache) MCount(prefix []byte, now time.Time) int {
	return len(c.collect(prefix, now))
}

// MSet implements MSET(prefix, value): SET applied to every key that
// already exists under prefix. It never creates new keys — per
// spec.md §8's "MSET(P,V) has the same visible effect as invoking SET
// on every key with prefix P that existed at the moment of dispatch."
// A locked entry is skipped, not reported, per spec.md §9's resolved
// open question on multi-op atomicity (best-effort, no partial-failure
// report).
func (c *Cache) MSet(prefix, value []byte, ttl time.Duration, now time.Time) int {
	entries := c.collect(prefix, now)
	n := 0
	for _, e := range entries {
		if e.it.Locked(now) {
			continue
		}
		c.chargeSwap(e.it, func() { e.it.Replace(value, ttl, c.cfg, now) })
		n++
	}
	return n
}

// MDelete implements MDEL(prefix).
func (c *Cache) MDelete(prefix []byte, now time.Time) int {
	entries := c.collect(prefix, now)
	n := 0
	for _, e := range entries {
		if e.it.Locked(now) {
			continue
		}
		c.tree.Delete(e.key)
		c.releaseAccounting(e.it)
		n++
	}
	return n
}

// MSetTTL implements MTTL(prefix, seconds).
func (c *Cache) MSetTTL(prefix []byte, ttl time.Duration, now time.Time) int {
	entries := c.collect(prefix, now)
	n := 0
	for _, e := range entries {
		if e.it.Locked(now) {
			continue
		}
		e.it.TTL = ttl
		n++
	}
	return n
}

// MLock implements MLOCK(prefix, seconds).
func (c *Cache) MLock(prefix []byte, d time.Duration, now time.Time) int {
	entries := c.collect(prefix, now)
	for _, e := range entries {
		e.it.Lock(now, d)
	}
	return len(entries)
}

// MUnlock implements MUNLOCK(prefix).
func (c *Cache) MUnlock(prefix []byte, now time.Time) int {
	entries := c.collect(prefix, now)
	for _, e := range entries {
		e.it.Unlock()
	}
	return len(entries)
}

func (c *Cache) mAdd(prefix []byte, delta int64, now time.Time) int {
	entries := c.collect(prefix, now)
	n := 0
	for _, e := range entries {
		if e.it.Locked(now) {
			continue
		}
		if _, err := c.addItem(e.it, delta); err == nil {
			n++
		}
	}
	return n
}

// MInc implements MINC(prefix).
func (c *Cache) MInc(prefix []byte, now time.Time) int { return c.mAdd(prefix, 1, now) }

// MDec implements MDEC(prefix).
func (c *Cache) MDec(prefix []byte, now time.Time) int { return c.mAdd(prefix, -1, now) }

// SweepExpired is the cron's 15s TTL sweep (spec.md §4.7): every item
// with a TTL that has elapsed is deleted, across the whole trie.
func (c *Cache) SweepExpired(now time.Time) int {
	n := 0
	c.tree.Walk(c.tree.Root(), func(_ []byte, it *item.Item) bool {
		if it.Expired(now) {
			c.releaseAccounting(it)
			n++
			return true
		}
		return false
	})
	return n
}

// EvictIdle is the cron's 5s pressure-eviction sweep (spec.md §4.7),
// run only when the caller has determined mem_used > max_memory. It
// is an approximate LRU: items untouched for at least idleThreshold
// are reclaimed, rather than a strict recency list being maintained.
func (c *Cache) EvictIdle(now time.Time, idleThreshold time.Duration) int {
	n := 0
	c.tree.Walk(c.tree.Root(), func(_ []byte, it *item.Item) bool {
		if now.Sub(it.LastAccessTime) >= idleThreshold {
			c.releaseAccounting(it)
			n++
			return true
		}
		return false
	})
	return n
}

// NodeCount exposes the trie's live node count, for the trie-
// compaction invariant test (spec.md §8 property 4).
func (c *Cache) NodeCount() int { return c.tree.NodeCount() }
