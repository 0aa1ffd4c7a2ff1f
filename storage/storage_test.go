package storage

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
)

const testSize = 64

func backends(t *testing.T) map[string]Backend {
	t.Helper()

	dir := t.TempDir()

	file, err := OpenFile(filepath.Join(dir, "eeprom.bin"), testSize)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	t.Cleanup(func() { file.Close() })

	db, err := OpenBolt(filepath.Join(dir, "eeprom.db"), testSize)
	if err != nil {
		t.Fatalf("OpenBolt failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return map[string]Backend{
		"memory": NewMemory(testSize),
		"file":   file,
		"bolt":   db,
	}
}

func assertBytes(t testing.TB, got, want []byte) {
	t.Helper()

	if !bytes.Equal(got, want) {
		t.Errorf("got % x want % x", got, want)
	}
}

func TestBackendContract(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if b.Size() != testSize {
				t.Fatalf("Size() = %d", b.Size())
			}

			if b.IsUsed(0, testSize) {
				t.Error("fresh region reported used")
			}

			buf := make([]byte, 4)
			if err := b.Read(10, buf); err != nil {
				t.Fatalf("Read failed: %v", err)
			}
			assertBytes(t, buf, []byte{0xFF, 0xFF, 0xFF, 0xFF})

			if err := b.Write(10, []byte{1, 2, 3}); err != nil {
				t.Fatalf("Write failed: %v", err)
			}
			if !b.IsUsed(10, 3) || !b.IsUsed(0, 16) {
				t.Error("written range reported unused")
			}
			if b.IsUsed(13, 8) {
				t.Error("untouched neighbour range reported used")
			}

			if err := b.Read(9, buf); err != nil {
				t.Fatalf("Read failed: %v", err)
			}
			assertBytes(t, buf, []byte{0xFF, 1, 2, 3})

			if err := b.Clear(10, 3); err != nil {
				t.Fatalf("Clear failed: %v", err)
			}
			if b.IsUsed(0, testSize) {
				t.Error("cleared region reported used")
			}
		})
	}
}

func TestBackendBounds(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			buf := make([]byte, 8)

			if err := b.Read(testSize-4, buf); !errors.Is(err, ErrOutOfRange) {
				t.Errorf("Read past end: got %v", err)
			}
			if err := b.Write(testSize-4, buf); !errors.Is(err, ErrOutOfRange) {
				t.Errorf("Write past end: got %v", err)
			}
			if err := b.Clear(testSize, 1); !errors.Is(err, ErrOutOfRange) {
				t.Errorf("Clear past end: got %v", err)
			}
			if err := b.Clear(0, -1); !errors.Is(err, ErrOutOfRange) {
				t.Errorf("Clear negative length: got %v", err)
			}
			if b.IsUsed(testSize-1, 2) {
				t.Error("IsUsed past end should be false")
			}

			if err := b.Write(testSize-8, buf); err != nil {
				t.Errorf("Write up to the last byte failed: %v", err)
			}
		})
	}
}

func TestFilePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eeprom.bin")

	f, err := OpenFile(path, testSize)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	if err := f.Write(5, []byte{0xAB, 0xCD}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	f.Close()

	f, err = OpenFile(path, testSize)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer f.Close()

	buf := make([]byte, 2)
	if err := f.Read(5, buf); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	assertBytes(t, buf, []byte{0xAB, 0xCD})
}

func TestBoltPersistsAndResizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eeprom.db")

	db, err := OpenBolt(path, 16)
	if err != nil {
		t.Fatalf("OpenBolt failed: %v", err)
	}
	if err := db.Write(0, []byte{7, 8}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	db.Close()

	db, err = OpenBolt(path, 32)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db.Close()

	buf := make([]byte, 3)
	if err := db.Read(0, buf); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	assertBytes(t, buf, []byte{7, 8, 0xFF})

	if db.IsUsed(16, 16) {
		t.Error("grown tail should be erased")
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default memory", Config{}, false},
		{"memory", Config{Kind: "Memory", Size: 32}, false},
		{"file", Config{Kind: "file", Path: filepath.Join(dir, "a.bin")}, false},
		{"bolt", Config{Kind: "bolt", Path: filepath.Join(dir, "a.db")}, false},
		{"largest addressable", Config{Size: MaxSize}, false},
		{"beyond uint16 keys", Config{Size: MaxSize + 1}, true},
		{"file without path", Config{Kind: "file"}, true},
		{"unknown", Config{Kind: "flash"}, true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			b, err := Open(c.cfg)
			if c.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			if closer, ok := b.(io.Closer); ok {
				defer closer.Close()
			}

			want := c.cfg.Size
			if want == 0 {
				want = DefaultSize
			}
			if b.Size() != want {
				t.Errorf("Size() = %d want %d", b.Size(), want)
			}
		})
	}
}

func TestDump(t *testing.T) {
	m := NewMemory(32)
	m.Write(0, []byte("hw"))

	buf := &bytes.Buffer{}
	if err := Dump(m, buf); err != nil {
		t.Fatalf("Dump failed: %v", err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, "00000000  68 77 ff ff") {
		t.Errorf("unexpected dump:\n%s", out)
	}
	if !strings.Contains(out, "00000010") {
		t.Errorf("dump missing second line:\n%s", out)
	}
}
