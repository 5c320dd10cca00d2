// Package bptree implements an on-disk B+ tree index over fixed-width
// int64 keys. Every node is paged to one block of the backing file and
// cached in a bounded second-chance cache, so lookups and ordered
// inserts never need the whole structure in memory.
package bptree

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/pkg/errors"

	"bpindex/pkg/customerrors"
	"bpindex/pkg/pager"
)

// bin is the byte order used for all marshals/unmarshals.
var bin = binary.LittleEndian

// metaBlockID is the reserved header block holding the metadata.
const metaBlockID = uint64(0)

// Open opens the named file as a B+ tree index file and returns an
// instance for use. A fresh file is initialized with an empty root
// leaf; an existing file is validated against the configured options.
// If nil options are provided, defaultOptions will be used.
func Open(fileName string, opts *Options) (*BPlusTree, error) {
	if opts == nil {
		o := defaultOptions
		opts = &o
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	p, err := pager.Open(fileName, opts.BlockSize, os.FileMode(0644))
	if err != nil {
		return nil, err
	}

	tree := &BPlusTree{file: fileName}
	if err := tree.open(p, opts); err != nil {
		_ = p.Close()
		return nil, err
	}

	return tree, nil
}

// BPlusTree represents an on-disk B+ tree. Each node is mapped to a
// single block in the file; the capacity of a node is decided by the
// block size while initializing. All operations run one complete
// traversal holding at most one node at a time, so the peak working
// set is bounded by tree height. The store is guarded by a mutex, so
// operations are safe to issue from multiple goroutines and Close
// waits for any in-flight operation.
type BPlusTree struct {
	file string

	mu    sync.Mutex
	store *NodeStore
}

// splitResult carries split information one level up the recursion:
// the separator key and the id of the freshly allocated right sibling.
type splitResult struct {
	sep   int64
	right uint64
}

// Insert puts the key into the tree, keeping keys unique: inserting an
// existing key is a no-op and returns false. Mutated nodes reach disk
// on WriteAll, Close or cache eviction, not per insert.
func (tree *BPlusTree) Insert(key int64) (bool, error) {
	tree.mu.Lock()
	defer tree.mu.Unlock()
	if tree.store == nil {
		return false, errors.New("tree is closed")
	}

	res, inserted, err := tree.insert(tree.store.Root(), key)
	if err != nil {
		return false, err
	}

	if res != nil {
		// split propagated past the root: grow the tree by one level.
		oldRoot := tree.store.Root()
		rootID, root, err := tree.store.Alloc(nodeInternal)
		if err != nil {
			return false, err
		}

		root.keys = append(root.keys, res.sep)
		root.children = append(root.children, oldRoot, res.right)
		if err := tree.store.Put(rootID, root); err != nil {
			return false, err
		}
		tree.store.SetRoot(rootID)
	}

	if inserted {
		tree.store.meta.size++
		tree.store.meta.dirty = true
	}
	return inserted, nil
}

// insert descends to the leaf for key and reports any split back up.
// Each frame fetches exactly one node, releases it before the child
// call, and re-fetches it when split information arrives from below.
func (tree *BPlusTree) insert(id uint64, key int64) (*splitResult, bool, error) {
	n, err := tree.store.Get(id)
	if err != nil {
		return nil, false, err
	}

	if n.isLeaf() {
		idx, found := n.search(key)
		if found {
			return nil, false, nil
		}

		if !n.isFull() {
			n.insertLeafEntry(idx, key)
			return nil, true, tree.store.Put(id, n)
		}

		rightID, right, err := tree.store.Alloc(nodeLeaf)
		if err != nil {
			return nil, false, err
		}

		sep := n.splitLeaf(right)
		if key >= sep {
			i, _ := right.search(key)
			right.insertLeafEntry(i, key)
		} else {
			i, _ := n.search(key)
			n.insertLeafEntry(i, key)
		}

		if err := tree.store.Put(id, n); err != nil {
			return nil, false, err
		}
		if err := tree.store.Put(rightID, right); err != nil {
			return nil, false, err
		}
		return &splitResult{sep: sep, right: rightID}, true, nil
	}

	childIdx, _ := n.search(key)
	childID := n.children[childIdx]
	n = nil // release before descending

	res, inserted, err := tree.insert(childID, key)
	if err != nil || res == nil {
		return nil, inserted, err
	}

	if n, err = tree.store.Get(id); err != nil {
		return nil, false, err
	}

	if !n.isFull() {
		idx, _ := n.search(res.sep)
		n.insertChildEntry(idx, res.sep, res.right)
		return nil, inserted, tree.store.Put(id, n)
	}

	rightID, right, err := tree.store.Alloc(nodeInternal)
	if err != nil {
		return nil, false, err
	}

	promoted := n.splitInternal(right)
	if res.sep >= promoted {
		idx, _ := right.search(res.sep)
		right.insertChildEntry(idx, res.sep, res.right)
	} else {
		idx, _ := n.search(res.sep)
		n.insertChildEntry(idx, res.sep, res.right)
	}

	if err := tree.store.Put(id, n); err != nil {
		return nil, false, err
	}
	if err := tree.store.Put(rightID, right); err != nil {
		return nil, false, err
	}
	return &splitResult{sep: promoted, right: rightID}, inserted, nil
}

// Search fetches the value stored for the given key. Returns
// ErrKeyNotFound if the key is absent.
func (tree *BPlusTree) Search(key int64) (int64, error) {
	tree.mu.Lock()
	defer tree.mu.Unlock()
	if tree.store == nil {
		return 0, errors.New("tree is closed")
	}

	id := tree.store.Root()
	for {
		n, err := tree.store.Get(id)
		if err != nil {
			return 0, err
		}

		if n.isLeaf() {
			idx, found := n.search(key)
			if !found {
				return 0, customerrors.ErrKeyNotFound
			}
			return n.vals[idx], nil
		}

		idx, _ := n.search(key)
		id = n.children[idx]
	}
}

// Size returns the number of entries in the entire tree.
func (tree *BPlusTree) Size() int64 {
	tree.mu.Lock()
	defer tree.mu.Unlock()
	if tree.store == nil {
		return 0
	}
	return int64(tree.store.meta.size)
}

// WriteAll writes all dirty nodes and the metadata to the backing
// file.
func (tree *BPlusTree) WriteAll() error {
	tree.mu.Lock()
	defer tree.mu.Unlock()
	if tree.store == nil {
		return errors.New("tree is closed")
	}
	return tree.store.FlushAll()
}

// Close flushes any pending writes and closes the underlying store.
// It waits for any operation already in flight; operations issued
// after Close fail.
func (tree *BPlusTree) Close() error {
	tree.mu.Lock()
	defer tree.mu.Unlock()
	if tree.store == nil {
		return nil
	}

	err := tree.store.Close()
	tree.store = nil
	return err
}

func (tree *BPlusTree) String() string {
	tree.mu.Lock()
	defer tree.mu.Unlock()
	if tree.store == nil {
		return fmt.Sprintf("BPlusTree{file='%s', closed}", tree.file)
	}
	return fmt.Sprintf(
		"BPlusTree{file='%s', size=%d, degree=%d}",
		tree.file, tree.store.meta.size, tree.store.meta.degree,
	)
}

// open loads the B+ tree stored in the file, or initializes a new one
// if the file is empty.
func (tree *BPlusTree) open(p *pager.Pager, opts *Options) error {
	if p.Count() == 0 {
		return tree.init(p, opts)
	}

	buf := make([]byte, p.BlockSize())
	if err := p.ReadBlock(metaBlockID, buf); err != nil {
		return errors.Wrap(err, "failed to read meta while opening index")
	}

	meta := &metadata{}
	if err := meta.UnmarshalBlock(buf); err != nil {
		return errors.Wrap(err, "failed to decode meta while opening index")
	}
	if err := meta.validate(opts); err != nil {
		return err
	}

	// next tracks the high-water block id; a file shorter than that
	// has lost node blocks.
	if meta.next > p.Count() {
		return errors.Wrapf(
			customerrors.ErrCorruptNode,
			"metadata expects %d blocks, file has %d", meta.next, p.Count(),
		)
	}

	tree.store = newNodeStore(p, meta, opts.CacheSize)
	return nil
}

// init initializes a new B+ tree in the underlying file: one block for
// the metadata and one for the empty root leaf.
func (tree *BPlusTree) init(p *pager.Pager, opts *Options) error {
	meta := &metadata{
		dirty:     true,
		magic:     magic,
		version:   version,
		blockSize: uint32(opts.BlockSize),
		degree:    uint16(opts.Degree),
		keySize:   keySize,
		refSize:   slotSize,
	}

	if _, err := p.Alloc(); err != nil { // meta block
		return err
	}

	tree.store = newNodeStore(p, meta, opts.CacheSize)

	rootID, _, err := tree.store.Alloc(nodeLeaf)
	if err != nil {
		return err
	}
	tree.store.SetRoot(rootID)

	return errors.Wrap(tree.store.FlushAll(), "failed to write meta after init")
}
