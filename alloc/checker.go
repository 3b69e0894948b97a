package alloc

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
)

// Validate walks both views of the heap — the segregated free lists and the
// linear block sequence — and verifies every structural invariant. It is
// silent (nil) on success. When the allocator is functioning correctly it
// should not be possible for this method to return an error; a non-nil
// result means either an allocator bug or a caller that wrote outside its
// allocation.
func (a *Allocator) Validate() error {
	if err := a.validatePrologue(); err != nil {
		return err
	}

	// listed remembers every block reached through the free lists, along
	// with the class that claimed it, so the linear walk can cross-check
	// membership and not just totals.
	listed := swiss.NewMap[Ref, int](uint32(a.freeCount) + 8)

	listCount, err := a.validateFreeLists(listed)
	if err != nil {
		return err
	}

	linearFreeCount, err := a.validateLinearHeap(listed)
	if err != nil {
		return err
	}

	if listCount != linearFreeCount {
		return cerrors.Errorf(
			"free-block count mismatch: the free lists hold %d blocks but the linear walk found %d",
			listCount, linearFreeCount,
		)
	}
	if listCount != a.freeCount {
		return cerrors.Errorf(
			"free-block accounting drifted: counted %d free blocks but the allocator recorded %d",
			listCount, a.freeCount,
		)
	}

	return nil
}

func (a *Allocator) validatePrologue() error {
	if a.blockSize(a.heapStart) != doubleSize || !a.isAllocated(a.heapStart) {
		return cerrors.Errorf(
			"bad prologue header: expected an allocated %d-byte sentinel, got size %d",
			doubleSize, a.blockSize(a.heapStart),
		)
	}
	if a.word(a.header(a.heapStart)) != a.word(a.footer(a.heapStart)) {
		return cerrors.New("prologue header and footer disagree")
	}
	return nil
}

func (a *Allocator) validateFreeLists(listed *swiss.Map[Ref, int]) (int, error) {
	count := 0

	for idx := range a.heads {
		prev := NullRef

		for bp := a.heads[idx]; bp != NullRef; bp = a.freeNext(bp) {
			if _, ok := listed.Get(bp); ok {
				return 0, cerrors.Errorf(
					"block at offset %d appears twice in the free lists (duplicate or cycle)", bp,
				)
			}
			listed.Put(bp, idx)
			count++

			if !a.inHeap(bp) {
				return 0, cerrors.Errorf("free list holds offset %d, which is outside the heap", bp)
			}
			if int(bp)%Alignment != 0 {
				return 0, cerrors.Errorf("free list holds misaligned offset %d", bp)
			}
			if a.isAllocated(bp) {
				return 0, cerrors.Errorf("block at offset %d is in a free list but is marked allocated", bp)
			}
			if int(bp)+a.blockSize(bp) > a.mem.Size() {
				return 0, cerrors.Errorf(
					"free block at offset %d (size %d) extends outside the heap",
					bp, a.blockSize(bp),
				)
			}
			if got := a.sizeClass(a.blockSize(bp)); got != idx {
				return 0, cerrors.Errorf(
					"block at offset %d (size %d) is filed under class %d but belongs in class %d",
					bp, a.blockSize(bp), idx, got,
				)
			}
			if a.freePrev(bp) != prev {
				return 0, cerrors.Errorf(
					"broken backward link: block at offset %d records predecessor %d, expected %d",
					bp, a.freePrev(bp), prev,
				)
			}
			prev = bp
		}
	}

	return count, nil
}

func (a *Allocator) validateLinearHeap(listed *swiss.Map[Ref, int]) (int, error) {
	freeCount := 0
	prevAllocated := true

	bp := a.heapStart
	for a.blockSize(bp) > 0 {
		size := a.blockSize(bp)

		if int(bp)%Alignment != 0 {
			return 0, cerrors.Errorf("block payload at offset %d is not %d-byte aligned", bp, Alignment)
		}
		// The block and the successor header it implies must both fit in
		// the committed region, or the walk cannot safely continue.
		if !a.inHeap(bp) || int(bp)+size > a.mem.Size() {
			return 0, cerrors.Errorf("block at offset %d (size %d) extends outside the heap", bp, size)
		}
		if size%doubleSize != 0 {
			return 0, cerrors.Errorf("block at offset %d has size %d, not a multiple of %d", bp, size, doubleSize)
		}
		if bp != a.heapStart && size < minBlockSize {
			return 0, cerrors.Errorf("block at offset %d has size %d, below the %d-byte minimum", bp, size, minBlockSize)
		}
		if a.prevAllocated(bp) != prevAllocated {
			return 0, cerrors.Errorf(
				"block at offset %d records predecessor-allocated=%t, but its predecessor is allocated=%t",
				bp, a.prevAllocated(bp), prevAllocated,
			)
		}

		if !a.isAllocated(bp) {
			freeCount++

			if a.word(a.header(bp)) != a.word(a.footer(bp)) {
				return 0, cerrors.Errorf("free block at offset %d has mismatched header and footer", bp)
			}
			if !a.isAllocated(a.nextBlock(bp)) {
				return 0, cerrors.Errorf(
					"blocks at offsets %d and %d are adjacent and both free (missed coalesce)",
					bp, a.nextBlock(bp),
				)
			}
			if bp != a.heapStart {
				if _, ok := listed.Get(bp); !ok {
					return 0, cerrors.Errorf("free block at offset %d is unreachable from the free lists", bp)
				}
			}
		}

		prevAllocated = a.isAllocated(bp)
		bp = a.nextBlock(bp)
	}

	// bp now sits on the epilogue.
	if a.blockSize(bp) != 0 || !a.isAllocated(bp) {
		return 0, cerrors.Errorf("bad epilogue at offset %d: expected an allocated zero-size sentinel", bp)
	}
	if a.prevAllocated(bp) != prevAllocated {
		return 0, cerrors.Errorf(
			"epilogue records predecessor-allocated=%t, but the last block is allocated=%t",
			a.prevAllocated(bp), prevAllocated,
		)
	}

	return freeCount, nil
}

func (a *Allocator) inHeap(bp Ref) bool {
	return int(bp) >= int(a.heapStart) && int(bp) < a.mem.Size()
}
