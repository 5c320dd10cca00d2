// Package cache implements a fixed-capacity frame cache with
// second-chance (CLOCK) eviction. Frames carry a dirty flag and a
// reference bit; a circular hand scans frames on eviction, clearing
// reference bits and evicting the first frame found clear. Dirty
// victims are written back through the WriteBack callback before their
// slot is reused.
package cache

import (
	"github.com/pkg/errors"
)

// WriteBack persists an evicted or flushed value. It is supplied by
// the cache owner and must write synchronously.
type WriteBack[T any] func(id uint64, val T) error

type frame[T any] struct {
	id         uint64
	val        T
	dirty      bool
	referenced bool
}

// Cache is a bounded id -> value cache with CLOCK eviction.
type Cache[T any] struct {
	capacity  int
	frames    []frame[T]
	index     map[uint64]int
	hand      int
	writeBack WriteBack[T]
}

// New creates a cache holding at most capacity values.
func New[T any](capacity int, writeBack WriteBack[T]) *Cache[T] {
	return &Cache[T]{
		capacity:  capacity,
		frames:    make([]frame[T], 0, capacity),
		index:     make(map[uint64]int, capacity),
		writeBack: writeBack,
	}
}

// Get returns the cached value for id, setting its reference bit.
func (c *Cache[T]) Get(id uint64) (val T, ok bool) {
	i, ok := c.index[id]
	if !ok {
		return val, false
	}

	c.frames[i].referenced = true
	return c.frames[i].val, true
}

// Has reports whether id is cached, without touching the reference bit.
func (c *Cache[T]) Has(id uint64) bool {
	_, ok := c.index[id]
	return ok
}

// Add inserts a value, evicting per the CLOCK policy if the cache is
// full. If the victim is dirty it is written back first; a write-back
// failure aborts the insert and leaves the victim frame intact.
func (c *Cache[T]) Add(id uint64, val T) error {
	if i, ok := c.index[id]; ok {
		c.frames[i].val = val
		c.frames[i].referenced = true
		return nil
	}

	slot := len(c.frames)
	if slot < c.capacity {
		c.frames = append(c.frames, frame[T]{})
	} else {
		var err error
		if slot, err = c.evict(); err != nil {
			return err
		}
	}

	c.frames[slot] = frame[T]{id: id, val: val, referenced: true}
	c.index[id] = slot
	return nil
}

// evict runs the clock hand until a frame with a clear reference bit
// is found, flushes it if dirty, and returns the freed slot. The hand
// is left just past the victim.
func (c *Cache[T]) evict() (int, error) {
	for {
		f := &c.frames[c.hand]
		if f.referenced {
			f.referenced = false
			c.advance()
			continue
		}

		if f.dirty {
			if err := c.writeBack(f.id, f.val); err != nil {
				return 0, errors.Wrapf(err, "failed to write back frame %d on eviction", f.id)
			}
			f.dirty = false
		}

		slot := c.hand
		if i, ok := c.index[f.id]; ok && i == slot {
			delete(c.index, f.id)
		}
		c.advance()
		return slot, nil
	}
}

func (c *Cache[T]) advance() {
	c.hand++
	if c.hand == len(c.frames) {
		c.hand = 0
	}
}

// Del drops the frame for id without writing it back, discarding any
// dirty state. Returns false if the id is not cached.
func (c *Cache[T]) Del(id uint64) bool {
	i, ok := c.index[id]
	if !ok {
		return false
	}

	// leave an empty unreferenced frame; the hand will reuse it.
	c.frames[i] = frame[T]{}
	delete(c.index, id)
	return true
}

// MarkDirty flags the frame for id as modified. Returns false if the
// id is not cached.
func (c *Cache[T]) MarkDirty(id uint64) bool {
	i, ok := c.index[id]
	if !ok {
		return false
	}

	c.frames[i].dirty = true
	c.frames[i].referenced = true
	return true
}

// IsDirty reports whether the frame for id is cached and dirty.
func (c *Cache[T]) IsDirty(id uint64) bool {
	i, ok := c.index[id]
	return ok && c.frames[i].dirty
}

// Flush writes back the frame for id if it is dirty. The dirty flag is
// cleared only after a successful write, so a failed flush can be
// retried.
func (c *Cache[T]) Flush(id uint64) error {
	i, ok := c.index[id]
	if !ok || !c.frames[i].dirty {
		return nil
	}

	if err := c.writeBack(id, c.frames[i].val); err != nil {
		return errors.Wrapf(err, "failed to flush frame %d", id)
	}

	c.frames[i].dirty = false
	return nil
}

// FlushAll writes back every dirty frame. On failure the remaining
// frames keep their dirty flags and the first error is returned.
func (c *Cache[T]) FlushAll() error {
	for i := range c.frames {
		f := &c.frames[i]
		if !f.dirty {
			continue
		}

		if err := c.writeBack(f.id, f.val); err != nil {
			return errors.Wrapf(err, "failed to flush frame %d", f.id)
		}
		f.dirty = false
	}
	return nil
}

// Len returns the number of cached frames.
func (c *Cache[T]) Len() int { return len(c.frames) }
