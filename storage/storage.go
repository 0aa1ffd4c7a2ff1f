package storage

import (
	"encoding/hex"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// Erased is the value of an unused byte, as on a freshly erased EEPROM.
const Erased byte = 0xFF

var ErrOutOfRange = errors.New("storage range out of bounds")

// Backend is a fixed-size, byte-addressed non-volatile region. A key is a
// byte offset into the region; the layout is entirely up to callers.
type Backend interface {
	// Read fills buf with the raw bytes at offset.
	Read(offset uint16, buf []byte) error
	// Write stores buf at offset, including any commit step the medium needs.
	Write(offset uint16, buf []byte) error
	// IsUsed reports whether any byte in the range differs from Erased. It
	// is a heuristic: it says nothing about the bytes being meaningful.
	IsUsed(offset uint16, length int) bool
	// Clear fills the range with Erased.
	Clear(offset uint16, length int) error
	// Size is the region length in bytes.
	Size() int
}

func checkBounds(size int, offset uint16, length int) error {
	if length < 0 || int(offset)+length > size {
		return errors.Wrapf(ErrOutOfRange, "offset %d + length %d exceeds region size %d", offset, length, size)
	}
	return nil
}

func erased(length int) []byte {
	buf := make([]byte, length)
	for i := range buf {
		buf[i] = Erased
	}
	return buf
}

func anyUsed(buf []byte) bool {
	for _, b := range buf {
		if b != Erased {
			return true
		}
	}
	return false
}

// Config selects and sizes a backend.
type Config struct {
	Kind string `json:"kind" yaml:"kind"`
	Path string `json:"path" yaml:"path"`
	Size int    `json:"size" yaml:"size"`
}

const DefaultSize = 1024

// MaxSize is the widest region a uint16 key can address.
const MaxSize = 1 << 16

// Open builds the backend described by cfg. File and bolt backends must be
// closed by the caller through io.Closer.
func Open(cfg Config) (Backend, error) {
	size := cfg.Size
	if size <= 0 {
		size = DefaultSize
	}
	if size > MaxSize {
		return nil, errors.Wrapf(ErrOutOfRange, "size %d exceeds %d addressable bytes", size, MaxSize)
	}

	switch strings.ToLower(cfg.Kind) {
	case "", "memory":
		return NewMemory(size), nil
	case "file":
		return OpenFile(cfg.Path, size)
	case "bolt":
		return OpenBolt(cfg.Path, size)
	default:
		return nil, errors.Errorf("unknown storage kind %q", cfg.Kind)
	}
}

// Dump writes a hex listing of the whole region to w.
func Dump(b Backend, w io.Writer) error {
	buf := make([]byte, b.Size())
	if err := b.Read(0, buf); err != nil {
		return errors.Wrap(err, "failed to read storage region")
	}

	dumper := hex.Dumper(w)
	defer dumper.Close()

	_, err := dumper.Write(buf)
	return err
}
