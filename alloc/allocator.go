// Package alloc implements a segregated-fit heap allocator whose bookkeeping
// lives entirely inside the arena it manages.
//
// Every block carries a 4-byte boundary tag packing its size with an
// allocated bit and a predecessor-allocated bit; free blocks mirror the tag
// in a footer and thread themselves through per-size-class doubly-linked
// lists stored in their own payload. Allocated blocks carry no footer, which
// is what the predecessor-allocated bit pays for. Adjacent free blocks are
// merged eagerly on every release, so no two free blocks ever touch.
//
// The allocator is single-threaded. Callers needing concurrency must add an
// external lock.
package alloc

import (
	cerrors "github.com/cockroachdb/errors"

	"github.com/fennelmist/segheap"
	"github.com/fennelmist/segheap/arena"
)

// Allocator manages a heap laid out inside an arena.Memory. All state other
// than the free-list head slots lives in the arena itself.
type Allocator struct {
	mem arena.Memory
	cfg Config

	// heads holds the first free block of each size class, NullRef if empty.
	heads []Ref

	// heapStart is the prologue payload offset; the linear walk begins here.
	heapStart Ref

	// placeBack alternates the split direction on every placement so
	// leftovers do not pile up on one side of repeatedly split regions.
	placeBack bool

	allocCount int
	freeCount  int
	freeBytes  int
}

var _ segheap.Validatable = &Allocator{}

// New lays down the heap sentinels inside mem and performs the initial chunk
// extension. The arena must be empty. A nil cfg selects DefaultConfig.
func New(mem arena.Memory, cfg *Config) (*Allocator, error) {
	if cfg == nil {
		cfg = &DefaultConfig
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	a := &Allocator{
		mem:   mem,
		cfg:   *cfg,
		heads: make([]Ref, cfg.SizeClasses),
	}
	if err := a.bootstrap(); err != nil {
		return nil, err
	}

	return a, nil
}

func (a *Allocator) bootstrap() error {
	base, err := a.mem.Grow(sentinelBytes)
	if err != nil {
		return cerrors.Wrap(err, "laying down heap sentinels")
	}
	if base != 0 {
		return cerrors.Errorf("allocator requires an empty arena, but %d bytes are already committed", base)
	}

	// Alignment pad, then prologue header+footer, then the epilogue header.
	// The pad shifts the prologue payload to offset 8, so offset 0 can
	// serve as the null link value.
	a.setWord(0, 0)
	a.setWord(wordSize, pack(doubleSize, true, true))
	a.setWord(2*wordSize, pack(doubleSize, true, true))
	a.setWord(3*wordSize, pack(0, true, true))
	a.heapStart = 2 * wordSize

	if _, err := a.extendHeap(a.cfg.ChunkSize); err != nil {
		return cerrors.Wrap(err, "initial heap extension")
	}

	segheap.DebugValidate(a)
	return nil
}

// Allocate returns a reference to a block with at least size usable bytes,
// aligned to Alignment. A zero size returns NullRef with no error. On
// exhaustion the returned error matches both ErrOutOfMemory and the arena's
// failure.
func (a *Allocator) Allocate(size int) (Ref, error) {
	if size == 0 {
		return NullRef, nil
	}
	if size < 0 {
		return NullRef, cerrors.Errorf("cannot allocate a negative size (%d)", size)
	}
	if size > maxRequestSize {
		return NullRef, cerrors.Mark(cerrors.Errorf("allocation of %d bytes cannot be satisfied", size), ErrOutOfMemory)
	}

	asize := a.adjustSize(size)

	bp := a.findFit(asize)
	if bp == NullRef {
		extend := asize
		if extend < a.cfg.ChunkSize {
			extend = a.cfg.ChunkSize
		}

		var err error
		bp, err = a.extendHeap(extend)
		if err != nil {
			return NullRef, cerrors.Mark(cerrors.Wrapf(err, "allocating %d bytes", size), ErrOutOfMemory)
		}
	}

	bp = a.place(bp, asize)
	a.allocCount++

	segheap.DebugValidate(a)
	return bp, nil
}

// Release returns a block to the heap and merges it with any free physical
// neighbor. Releasing NullRef is a no-op. Releasing a reference that is not
// a live allocation of this allocator corrupts the heap; a double release is
// caught, anything subtler is left to the consistency checker.
func (a *Allocator) Release(ref Ref) {
	if ref == NullRef {
		return
	}
	if !a.isAllocated(ref) {
		panic(cerrors.Errorf("release of block at offset %d, which is already free", ref))
	}

	size := a.blockSize(ref)
	prevAllocated := a.prevAllocated(ref)
	a.writeHeader(ref, size, false, prevAllocated)
	a.writeFooter(ref, size, false, prevAllocated)
	a.allocCount--

	a.coalesce(ref)

	segheap.DebugValidate(a)
}

// AllocateZeroed allocates room for count items of the given size and
// zero-fills the payload.
func (a *Allocator) AllocateZeroed(count, size int) (Ref, error) {
	if count == 0 || size == 0 {
		return NullRef, nil
	}
	if count < 0 || size < 0 {
		return NullRef, cerrors.Errorf("cannot allocate a negative extent (%d x %d)", count, size)
	}

	total := count * size
	if total/count != size {
		return NullRef, cerrors.Mark(cerrors.Errorf("allocation of %d x %d bytes overflows", count, size), ErrOutOfMemory)
	}

	ref, err := a.Allocate(total)
	if err != nil {
		return NullRef, err
	}

	payload := a.payloadBytes(ref, total)
	for i := range payload {
		payload[i] = 0
	}
	return ref, nil
}

// Bytes returns the usable payload of a live allocation. The slice is only
// valid until the next operation that grows the heap.
func (a *Allocator) Bytes(ref Ref) []byte {
	if ref == NullRef {
		return nil
	}
	return a.payloadBytes(ref, a.PayloadSize(ref))
}

// PayloadSize returns the number of usable bytes behind ref, which may
// exceed the size originally requested.
func (a *Allocator) PayloadSize(ref Ref) int {
	return a.blockSize(ref) - wordSize
}

// AllocationCount returns the number of live allocations.
func (a *Allocator) AllocationCount() int {
	return a.allocCount
}

// FreeRegionsCount returns the number of distinct free blocks.
func (a *Allocator) FreeRegionsCount() int {
	return a.freeCount
}

// SumFreeSize returns the number of bytes held in free blocks.
func (a *Allocator) SumFreeSize() int {
	return a.freeBytes
}

// extendHeap grows the arena, stamps the new space as one free block, moves
// the epilogue to the new high-water mark, and coalesces backward into any
// free block that preceded the old epilogue.
func (a *Allocator) extendHeap(bytes int) (Ref, error) {
	size := segheap.AlignUp(bytes, Alignment)

	off, err := a.mem.Grow(size)
	if err != nil {
		return NullRef, err
	}

	// The old epilogue header becomes the new block's header; its
	// predecessor-allocated bit already describes the block before it.
	bp := Ref(off)
	prevAllocated := a.prevAllocated(bp)
	a.writeHeader(bp, size, false, prevAllocated)
	a.writeFooter(bp, size, false, prevAllocated)
	a.setWord(a.header(a.nextBlock(bp)), pack(0, true, false))

	return a.coalesce(bp), nil
}

// coalesce merges a free block with free physical neighbors, inserts the
// survivor into its free list, and pushes its free state into the successor
// header.
func (a *Allocator) coalesce(bp Ref) Ref {
	prevAllocated := a.prevAllocated(bp)
	next := a.nextBlock(bp)
	nextAllocated := a.isAllocated(next)
	size := a.blockSize(bp)

	if !prevAllocated {
		prev := a.prevBlock(bp)
		a.removeFree(prev)
		size += a.blockSize(prev)
		bp = prev
		prevAllocated = a.prevAllocated(bp)
	}

	if !nextAllocated {
		a.removeFree(next)
		size += a.blockSize(next)
	}

	a.writeHeader(bp, size, false, prevAllocated)
	a.writeFooter(bp, size, false, prevAllocated)
	a.insertFree(bp)
	a.setNextPrevAllocated(bp, false)
	return bp
}

// findFit runs the bounded best-fit search: classes from smallest-sufficient
// upward, tracking the best candidate within a class, accepting exact or
// close-enough matches immediately, and abandoning a class after FitDepth
// extra candidates once something usable is held.
func (a *Allocator) findFit(asize int) Ref {
	for idx := a.sizeClass(asize); idx < len(a.heads); idx++ {
		best := NullRef
		bestSize := 0
		count := 0

		for bp := a.heads[idx]; bp != NullRef; bp = a.freeNext(bp) {
			currSize := a.blockSize(bp)
			if currSize == asize {
				return bp
			}
			if currSize > asize {
				if best == NullRef || currSize < bestSize {
					best = bp
					bestSize = currSize
					if currSize-asize <= a.cfg.FitSlack {
						return bp
					}
				}
			}
			count++
			if count > a.cfg.FitDepth && best != NullRef {
				break
			}
		}
		if best != NullRef {
			return best
		}
	}
	return NullRef
}

// place removes a free block from its list and carves asize off it. If the
// leftover could not stand alone as a block the whole thing is allocated.
// Otherwise the carve alternates between the front and the back of the block
// on successive splits.
func (a *Allocator) place(bp Ref, asize int) Ref {
	currSize := a.blockSize(bp)
	prevAllocated := a.prevAllocated(bp)
	a.removeFree(bp)

	if currSize-asize < minBlockSize {
		a.writeHeader(bp, currSize, true, prevAllocated)
		a.setNextPrevAllocated(bp, true)
		return bp
	}

	remainder := currSize - asize
	if !a.placeBack {
		a.writeHeader(bp, asize, true, prevAllocated)

		split := a.nextBlock(bp)
		a.writeHeader(split, remainder, false, true)
		a.writeFooter(split, remainder, false, true)
		a.insertFree(split)
		a.setNextPrevAllocated(split, false)

		a.placeBack = true
		return bp
	}

	a.writeHeader(bp, remainder, false, prevAllocated)
	a.writeFooter(bp, remainder, false, prevAllocated)
	a.insertFree(bp)

	taken := a.nextBlock(bp)
	a.writeHeader(taken, asize, true, false)
	a.setNextPrevAllocated(taken, true)

	a.placeBack = false
	return taken
}

// setNextPrevAllocated updates the successor's predecessor-allocated bit,
// including its footer when the successor is free.
func (a *Allocator) setNextPrevAllocated(bp Ref, prevAllocated bool) {
	next := a.nextBlock(bp)
	hdr := a.word(a.header(next)) &^ prevAllocBit
	if prevAllocated {
		hdr |= prevAllocBit
	}
	a.setWord(a.header(next), hdr)

	if hdr&allocatedBit == 0 && unpackSize(hdr) > 0 {
		a.setWord(a.footer(next), hdr)
	}
}

// VisitBlocks calls fn for every block between the sentinels in address
// order. fn receives the payload offset, full block size, and free state.
func (a *Allocator) VisitBlocks(fn func(offset, size int, free bool) error) error {
	for bp := a.nextBlock(a.heapStart); a.blockSize(bp) > 0; bp = a.nextBlock(bp) {
		err := fn(int(bp), a.blockSize(bp), !a.isAllocated(bp))
		if err != nil {
			return err
		}
	}
	return nil
}
