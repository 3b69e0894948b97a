// Package arena provides contiguous, monotonically growing memory regions
// for allocators that keep their bookkeeping inside the memory they manage.
//
// A Memory hands out bytes sbrk-style: Grow extends the committed region and
// returns the offset at which the new bytes begin. The region never shrinks
// and never develops holes, so an offset handed out once stays valid for the
// lifetime of the Memory. Consumers must address the region by offset rather
// than by retained slice, because some implementations move the backing
// storage when they grow.
package arena

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/pkg/errors"
)

// ErrExhausted is returned from Grow when extending the region would push it
// past the ceiling the Memory was created with.
var ErrExhausted error = errors.New("arena: address space exhausted")

func errGrowDelta(delta int) error {
	return cerrors.Errorf("arena: grow delta must be positive, not %d", delta)
}

func errGrowCeiling(delta, ceiling int) error {
	return cerrors.Wrapf(ErrExhausted, "grow of %d bytes would pass the %d-byte ceiling", delta, ceiling)
}

// Memory is a contiguous byte region that can only grow.
type Memory interface {
	// Grow extends the committed region by delta bytes and returns the
	// offset of the first new byte (the previous high-water mark). The
	// new bytes are zeroed. delta must be positive.
	Grow(delta int) (int, error)
	// Data returns the committed region [0, Size). The returned slice is
	// only valid until the next Grow call.
	Data() []byte
	// Size returns the number of committed bytes.
	Size() int
}
