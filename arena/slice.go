package arena

import (
	"github.com/fennelmist/segheap"
)

const defaultCeiling = 1 << 30

// SliceMemory is a Memory backed by an ordinary Go slice. The backing array
// is reallocated (and the contents copied) when the committed region outgrows
// its capacity, so offsets stay valid but slices returned from Data do not
// survive a Grow.
type SliceMemory struct {
	buf     []byte
	size    int
	ceiling int
}

var _ Memory = &SliceMemory{}

// NewSliceMemory creates an empty SliceMemory that will refuse to grow past
// ceiling bytes. The ceiling must be a power of two; passing 0 selects the
// 1GiB default.
func NewSliceMemory(ceiling int) (*SliceMemory, error) {
	if ceiling == 0 {
		ceiling = defaultCeiling
	}
	if err := segheap.CheckPow2(ceiling, "ceiling"); err != nil {
		return nil, err
	}

	return &SliceMemory{
		ceiling: ceiling,
	}, nil
}

func (m *SliceMemory) Grow(delta int) (int, error) {
	if delta <= 0 {
		return 0, errGrowDelta(delta)
	}

	// Compare against the headroom rather than m.size+delta, which can wrap
	// for a near-MaxInt delta.
	if delta > m.ceiling-m.size {
		return 0, errGrowCeiling(delta, m.ceiling)
	}
	need := m.size + delta

	if need > cap(m.buf) {
		newCap := cap(m.buf)
		if newCap == 0 {
			newCap = 1 << 16
		}
		for newCap < need {
			newCap *= 2
		}
		if newCap > m.ceiling {
			newCap = m.ceiling
		}

		newBuf := make([]byte, newCap)
		copy(newBuf, m.buf[:m.size])
		m.buf = newBuf
	}

	offset := m.size
	m.size = need
	return offset, nil
}

func (m *SliceMemory) Data() []byte {
	return m.buf[:m.size]
}

func (m *SliceMemory) Size() int {
	return m.size
}
