// Package customerrors defines sentinel errors shared by the pager,
// cache and B+ tree packages.
package customerrors

import (
	"errors"
)

var (
	// ErrKeyNotFound should be returned from lookup operations when the
	// lookup key is not found in the index.
	ErrKeyNotFound = errors.New("key not found")

	// ErrCorruptNode is returned when a block cannot be decoded into a
	// valid node (bad variant tag or key count out of range).
	ErrCorruptNode = errors.New("corrupt node block")

	// ErrInvalidCapacity is returned at construction time when the node
	// capacity derived from the block size is odd, too small, or does
	// not fit the block.
	ErrInvalidCapacity = errors.New("invalid node capacity")

	// ErrIncompatibleIndex is returned when an existing index file was
	// built with parameters different from the configured ones.
	ErrIncompatibleIndex = errors.New("index file parameters mismatch")

	// ErrInvalidBlockSize is returned when a file size is not a multiple
	// of the configured block size.
	ErrInvalidBlockSize = errors.New("file size is not block aligned")
)
