package storage

import (
	"os"
	"sync"

	"github.com/pkg/errors"
)

// File keeps the region in a fixed-size image file, the way an EEPROM is
// mirrored on boards that emulate it in flash. Every write is followed by a
// Sync, which plays the role of the EEPROM commit.
type File struct {
	mu   sync.Mutex
	f    *os.File
	size int
}

var _ Backend = &File{}

// OpenFile opens or creates the image at path. A new or short image is
// padded with erased bytes up to size.
func OpenFile(path string, size int) (*File, error) {
	if path == "" {
		return nil, errors.New("file storage requires a path")
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open storage image %s", path)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "failed to stat storage image %s", path)
	}

	if current := int(info.Size()); current < size {
		if _, err := f.WriteAt(erased(size-current), int64(current)); err != nil {
			f.Close()
			return nil, errors.Wrapf(err, "failed to initialize storage image %s", path)
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return nil, errors.Wrap(err, "failed to commit storage image")
		}
	}

	return &File{f: f, size: size}, nil
}

func (fs *File) Size() int {
	return fs.size
}

func (fs *File) Read(offset uint16, buf []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := checkBounds(fs.size, offset, len(buf)); err != nil {
		return err
	}
	if _, err := fs.f.ReadAt(buf, int64(offset)); err != nil {
		return errors.Wrapf(err, "failed to read %d bytes at %d", len(buf), offset)
	}
	return nil
}

func (fs *File) Write(offset uint16, buf []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := checkBounds(fs.size, offset, len(buf)); err != nil {
		return err
	}
	if _, err := fs.f.WriteAt(buf, int64(offset)); err != nil {
		return errors.Wrapf(err, "failed to write %d bytes at %d", len(buf), offset)
	}
	return errors.Wrap(fs.f.Sync(), "failed to commit storage image")
}

func (fs *File) IsUsed(offset uint16, length int) bool {
	if checkBounds(fs.size, offset, length) != nil {
		return false
	}

	buf := make([]byte, length)
	if err := fs.Read(offset, buf); err != nil {
		return false
	}
	return anyUsed(buf)
}

func (fs *File) Clear(offset uint16, length int) error {
	if err := checkBounds(fs.size, offset, length); err != nil {
		return err
	}
	return fs.Write(offset, erased(length))
}

func (fs *File) Close() error {
	return fs.f.Close()
}
