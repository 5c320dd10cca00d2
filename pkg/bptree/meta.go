package bptree

import (
	"github.com/pkg/errors"

	"bpindex/pkg/customerrors"
)

const (
	magic   = uint16(0xB1DE)
	version = uint8(0x1)

	metadataSize = 38
)

// metadata represents the index state persisted in block 0.
type metadata struct {
	// temporary state info
	dirty bool

	// actual metadata
	magic     uint16 // magic marker to identify the index file
	version   uint8  // version of implementation
	flags     uint8  // flags (unused)
	blockSize uint32 // block size used to initialize
	degree    uint16 // node capacity (max keys per leaf)
	keySize   uint16 // serialized key width
	refSize   uint16 // serialized node reference width
	root      uint64 // block id of the root node
	next      uint64 // next block id to allocate
	size      uint64 // number of entries in the tree
}

func (m *metadata) MarshalBlock(buf []byte) error {
	if len(buf) < metadataSize {
		return errors.Errorf("metadata needs %d bytes, got %d", metadataSize, len(buf))
	}

	bin.PutUint16(buf[0:2], m.magic)
	buf[2] = m.version
	buf[3] = m.flags
	bin.PutUint32(buf[4:8], m.blockSize)
	bin.PutUint16(buf[8:10], m.degree)
	bin.PutUint16(buf[10:12], m.keySize)
	bin.PutUint16(buf[12:14], m.refSize)
	bin.PutUint64(buf[14:22], m.root)
	bin.PutUint64(buf[22:30], m.next)
	bin.PutUint64(buf[30:38], m.size)
	return nil
}

func (m *metadata) UnmarshalBlock(buf []byte) error {
	if len(buf) < metadataSize {
		return errors.New("in-sufficient data for unmarshal")
	} else if m == nil {
		return errors.New("cannot unmarshal into nil metadata")
	}

	m.magic = bin.Uint16(buf[0:2])
	m.version = buf[2]
	m.flags = buf[3]
	m.blockSize = bin.Uint32(buf[4:8])
	m.degree = bin.Uint16(buf[8:10])
	m.keySize = bin.Uint16(buf[10:12])
	m.refSize = bin.Uint16(buf[12:14])
	m.root = bin.Uint64(buf[14:22])
	m.next = bin.Uint64(buf[22:30])
	m.size = bin.Uint64(buf[30:38])
	return nil
}

// validate checks a loaded metadata block against the configured
// options, so an index built with different parameters is rejected
// instead of silently misread.
func (m *metadata) validate(opts *Options) error {
	if m.magic != magic {
		return errors.Wrapf(customerrors.ErrIncompatibleIndex, "bad magic %#x", m.magic)
	}
	if m.version != version {
		return errors.Wrapf(
			customerrors.ErrIncompatibleIndex,
			"incompatible version %#x (expected %#x)", m.version, version,
		)
	}
	if int(m.blockSize) != opts.BlockSize || int(m.degree) != opts.Degree {
		return errors.Wrapf(
			customerrors.ErrIncompatibleIndex,
			"file has block size %d and degree %d, configured %d and %d",
			m.blockSize, m.degree, opts.BlockSize, opts.Degree,
		)
	}
	if int(m.keySize) != keySize || int(m.refSize) != slotSize {
		return errors.Wrapf(
			customerrors.ErrIncompatibleIndex,
			"file has key size %d and ref size %d, expected %d and %d",
			m.keySize, m.refSize, keySize, slotSize,
		)
	}
	return nil
}
