package bptree

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"bpindex/pkg/customerrors"
	"bpindex/pkg/pager"
)

func openTestStore(t *testing.T, path string, cacheSize int) *NodeStore {
	t.Helper()

	p, err := pager.Open(path, nodeSize(4), 0644)
	require.NoError(t, err)

	meta := &metadata{
		dirty:     true,
		magic:     magic,
		version:   version,
		blockSize: uint32(nodeSize(4)),
		degree:    4,
		keySize:   keySize,
		refSize:   slotSize,
	}
	if p.Count() == 0 {
		_, err = p.Alloc() // meta block
		require.NoError(t, err)
	}

	s := newNodeStore(p, meta, cacheSize)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNodeStore_AllocGetPut(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "store.bpt"), 4)

	id, n, err := s.Alloc(nodeLeaf)
	require.NoError(t, err)
	require.True(t, n.isLeaf())

	n.insertLeafEntry(0, 7)
	require.NoError(t, s.Put(id, n))

	got, err := s.Get(id)
	require.NoError(t, err)
	require.Equal(t, []int64{7}, got.keys)
}

func TestNodeStore_SurvivesEviction(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "store.bpt"), 1)

	id1, n1, err := s.Alloc(nodeLeaf)
	require.NoError(t, err)
	n1.insertLeafEntry(0, 1)
	require.NoError(t, s.Put(id1, n1))

	// a one-frame cache forces the dirty first node out on the second
	// allocation.
	id2, n2, err := s.Alloc(nodeLeaf)
	require.NoError(t, err)
	n2.insertLeafEntry(0, 2)
	require.NoError(t, s.Put(id2, n2))

	got, err := s.Get(id1)
	require.NoError(t, err)
	require.Equal(t, []int64{1}, got.keys)

	got, err = s.Get(id2)
	require.NoError(t, err)
	require.Equal(t, []int64{2}, got.keys)
}

func TestNodeStore_RootSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.bpt")

	p, err := pager.Open(path, nodeSize(4), 0644)
	require.NoError(t, err)
	_, err = p.Alloc()
	require.NoError(t, err)

	meta := &metadata{
		dirty:     true,
		magic:     magic,
		version:   version,
		blockSize: uint32(nodeSize(4)),
		degree:    4,
		keySize:   keySize,
		refSize:   slotSize,
	}
	s := newNodeStore(p, meta, 4)

	id, n, err := s.Alloc(nodeLeaf)
	require.NoError(t, err)
	n.insertLeafEntry(0, 11)
	require.NoError(t, s.Put(id, n))
	s.SetRoot(id)
	require.NoError(t, s.Close())

	p2, err := pager.Open(path, nodeSize(4), 0644)
	require.NoError(t, err)
	buf := make([]byte, p2.BlockSize())
	require.NoError(t, p2.ReadBlock(metaBlockID, buf))

	loaded := &metadata{}
	require.NoError(t, loaded.UnmarshalBlock(buf))
	require.Equal(t, id, loaded.root)

	s2 := newNodeStore(p2, loaded, 4)
	defer s2.Close()

	got, err := s2.Get(s2.Root())
	require.NoError(t, err)
	require.Equal(t, []int64{11}, got.keys)
}

func TestNodeStore_CorruptBlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.bpt")
	s := openTestStore(t, path, 4)

	id, n, err := s.Alloc(nodeLeaf)
	require.NoError(t, err)
	n.insertLeafEntry(0, 1)
	require.NoError(t, s.Put(id, n))
	require.NoError(t, s.FlushAll())

	// clobber the block's variant tag on disk, then force a re-read.
	buf := make([]byte, s.pager.BlockSize())
	buf[0] = 0x7F
	require.NoError(t, s.pager.WriteBlock(id, buf))

	s2 := openTestStore(t, path, 4)
	_, err = s2.Get(id)
	require.ErrorIs(t, err, customerrors.ErrCorruptNode)
}

func TestNodeStore_FlushClearsDirty(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "store.bpt"), 4)

	id, n, err := s.Alloc(nodeLeaf)
	require.NoError(t, err)
	n.insertLeafEntry(0, 3)
	require.NoError(t, s.Put(id, n))
	require.True(t, s.cache.IsDirty(id))

	require.NoError(t, s.Flush(id))
	require.False(t, s.cache.IsDirty(id))
}
