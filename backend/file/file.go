// Package file provides backend.Device implementations over seekable
// streams, regular files and block devices.
package file

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/anuejn/ext4-image-writer/backend"
)

type seekDevice struct {
	ws io.WriteSeeker
}

// New creates a backend.Device from any io.WriteSeeker. Each WriteBlock
// seeks to index*backend.BlockSize and writes a full, zero-padded block.
func New(ws io.WriteSeeker) backend.Device {
	return &seekDevice{ws: ws}
}

func (d *seekDevice) WriteBlock(index uint64, p []byte) error {
	if len(p) > backend.BlockSize {
		return backend.ErrOversizedPayload
	}
	if _, err := d.ws.Seek(int64(index)*backend.BlockSize, io.SeekStart); err != nil {
		return err
	}
	var block [backend.BlockSize]byte
	copy(block[:], p)
	_, err := d.ws.Write(block[:])
	return err
}

// Closer is a Device over a file that should be closed when the image is
// complete.
type Closer interface {
	backend.Device
	io.Closer
}

type fileDevice struct {
	f *os.File
}

// CreateFromPath creates a new image file at pathName and returns a device
// writing into it. The file must not already exist.
func CreateFromPath(pathName string) (Closer, error) {
	if pathName == "" {
		return nil, errors.New("must pass device name")
	}
	f, err := os.OpenFile(pathName, os.O_RDWR|os.O_EXCL|os.O_CREATE, 0o666)
	if err != nil {
		return nil, fmt.Errorf("could not create device %s: %w", pathName, err)
	}
	return &fileDevice{f: f}, nil
}

// OpenFromPath opens an existing file or block device for writing.
// Should pass a path to a block device e.g. /dev/sda or a path to a file
// /tmp/foo.img. When minSize is nonzero, a target whose reported size is
// nonzero and below minSize is rejected: on Linux a block device reports its
// ioctl-queried byte size, and otherwise the size from stat is used, so
// non-empty regular files are checked too.
func OpenFromPath(pathName string, minSize uint64) (Closer, error) {
	if pathName == "" {
		return nil, errors.New("must pass device or file name")
	}
	f, err := os.OpenFile(pathName, os.O_RDWR|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("could not open device %s: %w", pathName, err)
	}
	if minSize > 0 {
		size, err := deviceSize(f)
		if err == nil && size > 0 && size < minSize {
			_ = f.Close()
			return nil, fmt.Errorf("device %s is %d bytes, need %d: %w", pathName, size, minSize, backend.ErrNotSuitable)
		}
	}
	return &fileDevice{f: f}, nil
}

func (d *fileDevice) WriteBlock(index uint64, p []byte) error {
	if len(p) > backend.BlockSize {
		return backend.ErrOversizedPayload
	}
	var block [backend.BlockSize]byte
	copy(block[:], p)
	_, err := d.f.WriteAt(block[:], int64(index)*backend.BlockSize)
	return err
}

func (d *fileDevice) Close() error {
	return d.f.Close()
}
