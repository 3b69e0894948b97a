//go:build unix

package arena

import (
	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"

	"github.com/fennelmist/segheap"
)

// MmapMemory is a Memory backed by an anonymous mapping. The full ceiling is
// reserved up front, so the backing array never moves and Grow never copies.
// Close releases the mapping; the region must not be used afterward.
type MmapMemory struct {
	reserved []byte
	size     int
}

var _ Memory = &MmapMemory{}

// NewMmapMemory reserves ceiling bytes of anonymous memory and returns an
// empty MmapMemory committing into it. The ceiling must be a power of two;
// passing 0 selects the 1GiB default.
func NewMmapMemory(ceiling int) (*MmapMemory, error) {
	if ceiling == 0 {
		ceiling = defaultCeiling
	}
	if err := segheap.CheckPow2(ceiling, "ceiling"); err != nil {
		return nil, err
	}

	data, err := unix.Mmap(
		-1, 0, ceiling,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON,
	)
	if err != nil {
		return nil, cerrors.Wrapf(err, "failed to reserve %d bytes of anonymous memory", ceiling)
	}

	return &MmapMemory{
		reserved: data,
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

// Close unmaps the reservation.
func (m *MmapMemory) Close() error {
	if m.reserved == nil {
		return nil
	}

	err := unix.Munmap(m.reserved)
	m.reserved = nil
	m.size = 0
	return err
}
