//go:build debug_heap_check

package alloc

import cerrors "github.com/cockroachdb/errors"

// CheckConsistency runs the full heap validation and panics with a
// diagnostic naming the provided tag on any violation. A corrupted heap
// cannot be continued safely, so there is no recoverable-error form of this
// method. It no-ops unless the debug_heap_check build tag is present.
func (a *Allocator) CheckConsistency(tag string) {
	err := a.Validate()
	if err != nil {
		panic(cerrors.Wrapf(err, "heap consistency check failed at %q", tag))
	}
}
