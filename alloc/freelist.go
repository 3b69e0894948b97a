package alloc

import (
	"fmt"
	"math/bits"
)

// sizeClass maps a block size to its free-list slot. Classes follow the bit
// length of size-1; everything past the last slot shares it.
func (a *Allocator) sizeClass(size int) int {
	idx := bits.Len(uint(size-1)) - 4
	if idx < 0 {
		return 0
	}
	if idx >= len(a.heads) {
		return len(a.heads) - 1
	}
	return idx
}

// insertFree pushes a free block onto the head of its class list.
func (a *Allocator) insertFree(bp Ref) {
	if a.isAllocated(bp) {
		panic(fmt.Sprintf("segheap: block at offset %d inserted into a free list while allocated", bp))
	}

	size := a.blockSize(bp)
	idx := a.sizeClass(size)
	head := a.heads[idx]

	a.setFreeNext(bp, head)
	a.setFreePrev(bp, NullRef)
	if head != NullRef {
		a.setFreePrev(head, bp)
	}
	a.heads[idx] = bp

	a.freeCount++
	a.freeBytes += size
}

// removeFree splices a block out of its class list using its own stored
// links. Correct whether the block is the head, the tail, or the sole member.
func (a *Allocator) removeFree(bp Ref) {
	if a.isAllocated(bp) {
		panic(fmt.Sprintf("segheap: block at offset %d removed from a free list while allocated", bp))
	}

	size := a.blockSize(bp)
	idx := a.sizeClass(size)
	prev := a.freePrev(bp)
	next := a.freeNext(bp)

	if prev != NullRef {
		a.setFreeNext(prev, next)
	} else {
		a.heads[idx] = next
	}
	if next != NullRef {
		a.setFreePrev(next, prev)
	}

	a.freeCount--
	a.freeBytes -= size
}
