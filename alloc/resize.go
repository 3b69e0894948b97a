package alloc

import (
	cerrors "github.com/cockroachdb/errors"

	"github.com/fennelmist/segheap"
)

// Resize changes the usable size of an allocation, preserving the first
// min(old, new) payload bytes. Resizing NullRef allocates; resizing to zero
// releases and returns NullRef. The returned reference may differ from the
// original: the block is shrunk or grown in place when possible, and only
// copied to a fresh allocation as a last resort.
func (a *Allocator) Resize(ref Ref, size int) (Ref, error) {
	if ref == NullRef {
		return a.Allocate(size)
	}
	if size == 0 {
		a.Release(ref)
		return NullRef, nil
	}
	if size < 0 {
		return NullRef, cerrors.Errorf("cannot resize to a negative size (%d)", size)
	}
	if size > maxRequestSize {
		return NullRef, cerrors.Mark(cerrors.Errorf("resize to %d bytes cannot be satisfied", size), ErrOutOfMemory)
	}
	if !a.isAllocated(ref) {
		panic(cerrors.Errorf("resize of block at offset %d, which is not allocated", ref))
	}

	oldSize := a.blockSize(ref)
	asize := a.adjustSize(size)

	// Shrink in place, splitting off a trailing free block when the
	// leftover is big enough to stand alone.
	if asize <= oldSize {
		remainder := oldSize - asize
		if remainder >= minBlockSize {
			prevAllocated := a.prevAllocated(ref)
			a.writeHeader(ref, asize, true, prevAllocated)

			split := a.nextBlock(ref)
			a.writeHeader(split, remainder, false, true)
			a.writeFooter(split, remainder, false, true)
			a.setNextPrevAllocated(split, false)
			a.coalesce(split)
		}

		segheap.DebugValidate(a)
		return ref, nil
	}

	// Grow in place by absorbing the next block if it is free and the
	// combined size suffices, avoiding a copy.
	next := a.nextBlock(ref)
	if !a.isAllocated(next) {
		combined := oldSize + a.blockSize(next)
		if combined >= asize {
			a.removeFree(next)

			remainder := combined - asize
			newSize := combined
			if remainder >= minBlockSize {
				newSize = asize
			}

			prevAllocated := a.prevAllocated(ref)
			a.writeHeader(ref, newSize, true, prevAllocated)

			if remainder >= minBlockSize {
				split := a.nextBlock(ref)
				a.writeHeader(split, remainder, false, true)
				a.writeFooter(split, remainder, false, true)
				a.insertFree(split)
				a.setNextPrevAllocated(split, false)
			} else {
				a.setNextPrevAllocated(ref, true)
			}

			segheap.DebugValidate(a)
			return ref, nil
		}
	}

	// Last resort: allocate elsewhere, copy, release.
	newRef, err := a.Allocate(size)
	if err != nil {
		return NullRef, err
	}

	n := oldSize - wordSize
	if size < n {
		n = size
	}
	copy(a.payloadBytes(newRef, n), a.payloadBytes(ref, n))
	a.Release(ref)

	segheap.DebugValidate(a)
	return newRef, nil
}
