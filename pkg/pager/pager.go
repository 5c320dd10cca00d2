// Package pager provides raw access to a file as an array of fixed
// size blocks. It knows nothing about what the blocks contain; block 0
// is conventionally reserved by the caller for metadata.
package pager

import (
	"os"

	"bpindex/pkg/customerrors"

	"github.com/pkg/errors"
)

// Pager manages block-aligned I/O on a single backing file. All reads
// and writes are done synchronously with blocks of the configured size.
type Pager struct {
	file      *os.File
	blockSize int
	count     uint64
}

// Open opens (or creates) the named file for block I/O. The file size
// must be a multiple of blockSize.
func Open(fileName string, blockSize int, mode os.FileMode) (*Pager, error) {
	f, err := os.OpenFile(fileName, os.O_CREATE|os.O_RDWR, mode)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open block file")
	}

	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "failed to stat block file")
	}

	if stat.Size()%int64(blockSize) != 0 {
		_ = f.Close()
		return nil, errors.Wrapf(
			customerrors.ErrInvalidBlockSize,
			"file size %d, block size %d", stat.Size(), blockSize,
		)
	}

	return &Pager{
		file:      f,
		blockSize: blockSize,
		count:     uint64(stat.Size()) / uint64(blockSize),
	}, nil
}

// BlockSize returns the size of one block in bytes.
func (p *Pager) BlockSize() int { return p.blockSize }

// Count returns the number of blocks currently in the file.
func (p *Pager) Count() uint64 { return p.count }

// Alloc appends one zeroed block to the file and returns its id.
// Ids are stable for the lifetime of the file and never reused.
func (p *Pager) Alloc() (uint64, error) {
	id := p.count
	if err := p.file.Truncate(int64(id+1) * int64(p.blockSize)); err != nil {
		return 0, errors.Wrapf(err, "failed to grow file for block %d", id)
	}

	p.count++
	return id, nil
}

// ReadBlock reads the block with the given id into buf. len(buf) must
// equal the block size.
func (p *Pager) ReadBlock(id uint64, buf []byte) error {
	if len(buf) != p.blockSize {
		return errors.Errorf("read buffer size %d != block size %d", len(buf), p.blockSize)
	}
	if id >= p.count {
		return errors.Errorf("block %d out of range (%d blocks)", id, p.count)
	}

	if _, err := p.file.ReadAt(buf, int64(id)*int64(p.blockSize)); err != nil {
		return errors.Wrapf(err, "failed to read block %d", id)
	}
	return nil
}

// WriteBlock writes buf as the block with the given id. len(buf) must
// equal the block size.
func (p *Pager) WriteBlock(id uint64, buf []byte) error {
	if len(buf) != p.blockSize {
		return errors.Errorf("write buffer size %d != block size %d", len(buf), p.blockSize)
	}
	if id >= p.count {
		return errors.Errorf("block %d out of range (%d blocks)", id, p.count)
	}

	if _, err := p.file.WriteAt(buf, int64(id)*int64(p.blockSize)); err != nil {
		return errors.Wrapf(err, "failed to write block %d", id)
	}
	return nil
}

// Sync flushes file contents to stable storage.
func (p *Pager) Sync() error {
	return errors.Wrap(p.file.Sync(), "failed to sync block file")
}

// Close syncs and closes the underlying file.
func (p *Pager) Close() error {
	if p.file == nil {
		return nil
	}

	err := p.Sync()
	if cerr := p.file.Close(); err == nil {
		err = errors.Wrap(cerr, "failed to close block file")
	}
	p.file = nil
	return err
}
