package bptree

import (
	"fmt"

	"github.com/pkg/errors"

	"bpindex/pkg/customerrors"
)

const (
	// nodeHeaderSz is 1 (variant tag) + 2 (key count).
	nodeHeaderSz = 3

	// keySize is the serialized width of one key slot.
	keySize = 8
	// slotSize is the serialized width of one value-or-child slot.
	slotSize = 8

	flagLeafNode     = uint8(0x0)
	flagInternalNode = uint8(0x1)
)

type nodeType uint8

const (
	nodeLeaf nodeType = iota
	nodeInternal
)

// node represents an internal or leaf node in the B+ tree. Both
// variants share one representation so the store can cache and
// serialize them uniformly; kind tags the variant.
//
// A leaf holds up to meta.degree keys, vals[i] mirroring keys[i]
// (leaves carry no separate payload type). An internal node holds up
// to meta.degree-1 separator keys and len(keys)+1 children.
type node struct {
	meta *metadata
	kind nodeType

	keys     []int64
	vals     []int64  // leaf only
	children []uint64 // internal only
}

func (n *node) isLeaf() bool { return n.kind == nodeLeaf }

func (n *node) isFull() bool {
	if n.isLeaf() {
		return len(n.keys) >= int(n.meta.degree)
	}
	return len(n.keys) >= int(n.meta.degree)-1
}

// search performs a binary search over the node keys and returns the
// index where the key should be along with a flag indicating whether
// it exists. For internal nodes an equal key maps one past itself, so
// separators act as exclusive lower bounds of their right subtree.
func (n *node) search(key int64) (idx int, found bool) {
	left, right := 0, len(n.keys)-1

	for left <= right {
		idx = (right + left) / 2

		if key == n.keys[idx] {
			if n.isLeaf() {
				return idx, true
			}
			return idx + 1, true
		} else if key > n.keys[idx] {
			left = idx + 1
		} else {
			right = idx - 1
		}
	}

	return left, false
}

// insertLeafEntry inserts the key at the given index. The value slot
// mirrors the key since leaves store no distinct payload. The caller
// must split first if the node is full.
func (n *node) insertLeafEntry(idx int, key int64) {
	n.keys = append(n.keys, 0)
	copy(n.keys[idx+1:], n.keys[idx:])
	n.keys[idx] = key

	n.vals = append(n.vals, 0)
	copy(n.vals[idx+1:], n.vals[idx:])
	n.vals[idx] = key
}

// insertChildEntry inserts the separator at the given index and the
// child reference just right of it.
func (n *node) insertChildEntry(idx int, sep int64, child uint64) {
	n.keys = append(n.keys, 0)
	copy(n.keys[idx+1:], n.keys[idx:])
	n.keys[idx] = sep

	n.children = append(n.children, 0)
	copy(n.children[idx+2:], n.children[idx+1:])
	n.children[idx+1] = child
}

// splitLeaf moves the upper half of a full leaf into right and returns
// the separator: the smallest key of the right half, which stays in
// the leaf and is copied up to the parent.
func (n *node) splitLeaf(right *node) int64 {
	half := len(n.keys) / 2

	right.keys = append(right.keys, n.keys[half:]...)
	right.vals = append(right.vals, n.vals[half:]...)
	n.keys = n.keys[:half]
	n.vals = n.vals[:half]

	return right.keys[0]
}

// splitInternal splits a full internal node at the midpoint. The
// middle key is promoted to the parent and removed from both halves;
// children right of it move to right.
func (n *node) splitInternal(right *node) int64 {
	mid := len(n.keys) / 2
	promoted := n.keys[mid]

	right.keys = append(right.keys, n.keys[mid+1:]...)
	right.children = append(right.children, n.children[mid+1:]...)
	n.keys = n.keys[:mid]
	n.children = n.children[:mid+1]

	return promoted
}

// MarshalBlock encodes the node into buf, which must be at least one
// block large. Layout: variant tag, key count, degree key slots, then
// degree value slots (leaf) or key count+1 child slots (internal);
// the rest of the block is padding.
func (n *node) MarshalBlock(buf []byte) error {
	if len(buf) < nodeSize(int(n.meta.degree)) {
		return errors.Errorf("node needs %d bytes, got %d", nodeSize(int(n.meta.degree)), len(buf))
	}

	if n.isLeaf() {
		buf[0] = flagLeafNode
	} else {
		buf[0] = flagInternalNode
	}
	bin.PutUint16(buf[1:3], uint16(len(n.keys)))

	offset := nodeHeaderSz
	for _, k := range n.keys {
		bin.PutUint64(buf[offset:offset+keySize], uint64(k))
		offset += keySize
	}

	offset = nodeHeaderSz + int(n.meta.degree)*keySize
	if n.isLeaf() {
		for _, v := range n.vals {
			bin.PutUint64(buf[offset:offset+slotSize], uint64(v))
			offset += slotSize
		}
	} else {
		for _, c := range n.children {
			bin.PutUint64(buf[offset:offset+slotSize], c)
			offset += slotSize
		}
	}

	return nil
}

// UnmarshalBlock decodes a node from buf. A tag or count that is out
// of range for the configured capacity fails with ErrCorruptNode.
func (n *node) UnmarshalBlock(buf []byte) error {
	if n == nil {
		return errors.New("cannot unmarshal into nil node")
	}
	if len(buf) < nodeSize(int(n.meta.degree)) {
		return errors.Wrap(customerrors.ErrCorruptNode, "block too small")
	}

	switch buf[0] {
	case flagLeafNode:
		n.kind = nodeLeaf
	case flagInternalNode:
		n.kind = nodeInternal
	default:
		return errors.Wrapf(customerrors.ErrCorruptNode, "unknown variant tag %#x", buf[0])
	}

	count := int(bin.Uint16(buf[1:3]))
	degree := int(n.meta.degree)
	if n.isLeaf() && count > degree {
		return errors.Wrapf(customerrors.ErrCorruptNode, "leaf key count %d exceeds %d", count, degree)
	}
	if !n.isLeaf() && (count == 0 || count > degree-1) {
		return errors.Wrapf(customerrors.ErrCorruptNode, "internal key count %d out of range", count)
	}

	offset := nodeHeaderSz
	n.keys = make([]int64, count)
	for i := 0; i < count; i++ {
		n.keys[i] = int64(bin.Uint64(buf[offset : offset+keySize]))
		offset += keySize
	}

	offset = nodeHeaderSz + degree*keySize
	if n.isLeaf() {
		n.vals = make([]int64, count)
		for i := 0; i < count; i++ {
			n.vals[i] = int64(bin.Uint64(buf[offset : offset+slotSize]))
			offset += slotSize
		}
	} else {
		n.children = make([]uint64, count+1)
		for i := 0; i < count+1; i++ {
			n.children[i] = bin.Uint64(buf[offset : offset+slotSize])
			offset += slotSize
		}
	}

	return nil
}

func (n *node) String() string {
	return fmt.Sprintf("node{keys=%v, leaf=%t}", n.keys, n.isLeaf())
}
