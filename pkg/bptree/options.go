package bptree

import (
	"math"

	"github.com/pkg/errors"

	"bpindex/pkg/customerrors"
)

// Options represents the configuration options for the B+ tree index.
type Options struct {
	// BlockSize to be used for file I/O. All reads and writes will
	// always be done with blocks of this size. Every node occupies
	// exactly one block.
	BlockSize int `json:"block_size"`

	// CacheSize is the number of node frames kept in memory.
	CacheSize int `json:"cache_size"`

	// Degree is the node capacity (max keys per leaf). If zero, it is
	// derived from BlockSize. Must be even.
	Degree int `json:"degree"`
}

var defaultOptions = Options{
	BlockSize: 4096,
	CacheSize: 64,
}

// deriveDegree computes the node capacity that maximizes occupancy of
// one block: header byte layout plus `degree` key slots and `degree`
// value-or-child slots, rounded down to the nearest even number (split
// logic requires an exact midpoint). The capacity is capped so it fits
// the metadata's uint16 degree field.
func deriveDegree(blockSize int) int {
	d := (blockSize - nodeHeaderSz) / (keySize + slotSize)
	if d > math.MaxUint16-1 {
		d = math.MaxUint16 - 1
	}
	return d / 2 * 2
}

// nodeSize returns the serialized size of a node with the given
// capacity.
func nodeSize(degree int) int {
	return nodeHeaderSz + degree*(keySize+slotSize)
}

func (o *Options) validate() error {
	if o.CacheSize <= 0 {
		return errors.Wrapf(customerrors.ErrInvalidCapacity, "cache size %d", o.CacheSize)
	}

	if o.Degree == 0 {
		o.Degree = deriveDegree(o.BlockSize)
	}

	switch {
	case o.Degree < 4:
		return errors.Wrapf(customerrors.ErrInvalidCapacity, "degree %d is too small", o.Degree)
	case o.Degree%2 != 0:
		return errors.Wrapf(customerrors.ErrInvalidCapacity, "degree %d is odd", o.Degree)
	case o.Degree > math.MaxUint16-1:
		return errors.Wrapf(customerrors.ErrInvalidCapacity, "degree %d does not fit the metadata field", o.Degree)
	case nodeSize(o.Degree) > o.BlockSize:
		return errors.Wrapf(
			customerrors.ErrInvalidCapacity,
			"node of degree %d needs %d bytes, block size is %d",
			o.Degree, nodeSize(o.Degree), o.BlockSize,
		)
	}

	return nil
}
