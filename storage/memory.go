package storage

import "sync"

// Memory is an in-process emulated EEPROM. It does not survive a restart and
// is mostly useful for tests and the mock kit.
type Memory struct {
	mu     sync.Mutex
	region []byte
}

var _ Backend = &Memory{}

func NewMemory(size int) *Memory {
	return &Memory{region: erased(size)}
}

func (m *Memory) Size() int {
	return len(m.region)
}

func (m *Memory) Read(offset uint16, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := checkBounds(len(m.region), offset, len(buf)); err != nil {
		return err
	}
	copy(buf, m.region[offset:])
	return nil
}

func (m *Memory) Write(offset uint16, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := checkBounds(len(m.region), offset, len(buf)); err != nil {
		return err
	}
	copy(m.region[offset:], buf)
	return nil
}

func (m *Memory) IsUsed(offset uint16, length int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if checkBounds(len(m.region), offset, length) != nil {
		return false
	}
	return anyUsed(m.region[int(offset) : int(offset)+length])
}

func (m *Memory) Clear(offset uint16, length int) error {
	if err := checkBounds(m.Size(), offset, length); err != nil {
		return err
	}
	return m.Write(offset, erased(length))
}
