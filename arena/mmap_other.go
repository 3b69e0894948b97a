//go:build !unix

package arena

import "github.com/fennelmist/segheap"

// MmapMemory reserves its full ceiling up front so the backing array never
// moves. On platforms without anonymous mappings the reservation is an
// ordinary slice.
type MmapMemory struct {
	reserved []byte
	size     int
}

var _ Memory = &MmapMemory{}

// NewMmapMemory reserves ceiling bytes and returns an empty MmapMemory
// committing into it. The ceiling must be a power of two; passing 0 selects
// the 1GiB default.
func NewMmapMemory(ceiling int) (*MmapMemory, error) {
	if ceiling == 0 {
		ceiling = defaultCeiling
	}
	if err := segheap.CheckPow2(ceiling, "ceiling"); err != nil {
		return nil, err
	}

	return &MmapMemory{
		reserved: make([]byte, ceiling),
	}, nil
}

func (m *MmapMemory) Grow(delta int) (int, error) {
	if delta <= 0 {
		return 0, errGrowDelta(delta)
	}

	if delta > len(m.reserved)-m.size {
		return 0, errGrowCeiling(delta, len(m.reserved))
	}

	offset := m.size
	m.size += delta
	return offset, nil
}

func (m *MmapMemory) Data() []byte {
	return m.reserved[:m.size]
}

func (m *MmapMemory) Size() int {
	return m.size
}

// Close releases the reservation.
func (m *MmapMemory) Close() error {
	m.reserved = nil
	m.size = 0
	return nil
}
