package bptree

import (
	"github.com/pkg/errors"

	"bpindex/pkg/cache"
	"bpindex/pkg/pager"
)

// NodeStore owns the backing file and a bounded in-memory cache of
// nodes. It translates block ids to node contents; everything above it
// reaches nodes only through ids. Dirty nodes are written back on
// eviction, on explicit flush, or on close — never eagerly.
type NodeStore struct {
	pager *pager.Pager
	cache *cache.Cache[*node]
	meta  *metadata
}

func newNodeStore(p *pager.Pager, meta *metadata, cacheSize int) *NodeStore {
	s := &NodeStore{
		pager: p,
		meta:  meta,
	}
	s.cache = cache.New[*node](cacheSize, s.writeNode)
	return s
}

// writeNode is the cache write-back: it encodes the node and writes
// its block synchronously.
func (s *NodeStore) writeNode(id uint64, n *node) error {
	buf := make([]byte, s.pager.BlockSize())
	if err := n.MarshalBlock(buf); err != nil {
		return errors.Wrapf(err, "failed to encode node %d", id)
	}
	return s.pager.WriteBlock(id, buf)
}

func (s *NodeStore) newNode(kind nodeType) *node {
	n := &node{
		meta: s.meta,
		kind: kind,
		keys: make([]int64, 0, s.meta.degree),
	}
	if kind == nodeLeaf {
		n.vals = make([]int64, 0, s.meta.degree)
	} else {
		n.children = make([]uint64, 0, s.meta.degree)
	}
	return n
}

// Alloc reserves a new block and installs an empty node of the given
// kind in the cache, marked dirty. The returned id is unique for the
// store's lifetime.
func (s *NodeStore) Alloc(kind nodeType) (uint64, *node, error) {
	id, err := s.pager.Alloc()
	if err != nil {
		return 0, nil, err
	}

	s.meta.next = s.pager.Count()
	s.meta.dirty = true

	n := s.newNode(kind)
	if err := s.cache.Add(id, n); err != nil {
		return 0, nil, err
	}
	s.cache.MarkDirty(id)
	return id, n, nil
}

// Get returns the node behind id. The underlying file is accessed only
// if the node is not cached; a miss may evict another frame per the
// second-chance policy.
func (s *NodeStore) Get(id uint64) (*node, error) {
	if n, ok := s.cache.Get(id); ok {
		return n, nil
	}

	buf := make([]byte, s.pager.BlockSize())
	if err := s.pager.ReadBlock(id, buf); err != nil {
		return nil, err
	}

	n := &node{meta: s.meta}
	if err := n.UnmarshalBlock(buf); err != nil {
		return nil, errors.Wrapf(err, "failed to decode node %d", id)
	}

	if err := s.cache.Add(id, n); err != nil {
		return nil, err
	}
	return n, nil
}

// Put updates the in-memory contents for id and marks the frame dirty.
// Nothing is written until eviction or flush.
func (s *NodeStore) Put(id uint64, n *node) error {
	if err := s.cache.Add(id, n); err != nil {
		return err
	}
	s.cache.MarkDirty(id)
	return nil
}

// Flush writes the node behind id if dirty. On failure the dirty flag
// stays set so a retry reattempts the write.
func (s *NodeStore) Flush(id uint64) error {
	return s.cache.Flush(id)
}

// FlushAll writes every dirty node and the metadata block.
func (s *NodeStore) FlushAll() error {
	if err := s.cache.FlushAll(); err != nil {
		return err
	}
	return s.writeMeta()
}

// SetRoot records the id of the root node in the metadata.
func (s *NodeStore) SetRoot(id uint64) {
	s.meta.root = id
	s.meta.dirty = true
}

// Root returns the id of the current root node.
func (s *NodeStore) Root() uint64 { return s.meta.root }

func (s *NodeStore) writeMeta() error {
	if !s.meta.dirty {
		return nil
	}

	buf := make([]byte, s.pager.BlockSize())
	if err := s.meta.MarshalBlock(buf); err != nil {
		return err
	}
	if err := s.pager.WriteBlock(metaBlockID, buf); err != nil {
		return errors.Wrap(err, "failed to write meta block")
	}

	s.meta.dirty = false
	return nil
}

// Close flushes all pending writes and closes the backing file.
func (s *NodeStore) Close() error {
	if s.pager == nil {
		return nil
	}

	err := s.FlushAll()
	if cerr := s.pager.Close(); err == nil {
		err = cerr
	}
	s.pager = nil
	return err
}
