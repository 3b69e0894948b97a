package alloc

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/fennelmist/segheap"
)

// Ref is an arena-relative payload offset identifying a block. The zero Ref
// is the null reference; the prologue sentinel guarantees no block payload
// ever starts at offset 0.
type Ref uint32

// NullRef is the null block reference.
const NullRef Ref = 0

const (
	// Alignment is the guaranteed alignment of every payload offset.
	Alignment = 8

	wordSize     = 4
	doubleSize   = 8
	minBlockSize = 16

	allocatedBit = 0x1
	prevAllocBit = 0x2
	sizeMask     = ^uint32(allocatedBit | prevAllocBit | 0x4)
)

// sentinelBytes is the fixed cost of the alignment pad, the prologue
// header/footer, and the epilogue header.
const sentinelBytes = 4 * wordSize

// maxRequestSize bounds a single request so the header and alignment
// arithmetic in adjustSize cannot wrap around.
const maxRequestSize = math.MaxInt - doubleSize - wordSize

// pack encodes a boundary-tag word. The low three bits of size are always
// zero, which is what frees them up for the flag bits.
func pack(size int, allocated, prevAllocated bool) uint32 {
	word := uint32(size)
	if allocated {
		word |= allocatedBit
	}
	if prevAllocated {
		word |= prevAllocBit
	}
	return word
}

func unpackSize(word uint32) int {
	return int(word & sizeMask)
}

// word reads the 4-byte tag at the given arena offset. Offsets outside the
// committed region are a caller contract violation and panic.
func (a *Allocator) word(off Ref) uint32 {
	data := a.mem.Data()
	end := int(off) + wordSize
	if end > len(data) {
		panic(fmt.Sprintf("segheap: read of word at offset %d outside the %d-byte arena", off, len(data)))
	}
	return binary.LittleEndian.Uint32(data[off:end])
}

func (a *Allocator) setWord(off Ref, word uint32) {
	data := a.mem.Data()
	end := int(off) + wordSize
	if end > len(data) {
		panic(fmt.Sprintf("segheap: write of word at offset %d outside the %d-byte arena", off, len(data)))
	}
	binary.LittleEndian.PutUint32(data[off:end], word)
}

// header returns the offset of a block's header tag.
func (a *Allocator) header(bp Ref) Ref {
	return bp - wordSize
}

// footer returns the offset of a block's footer tag. Only free blocks carry
// a footer; calling this on an allocated block addresses its payload tail.
func (a *Allocator) footer(bp Ref) Ref {
	return bp + Ref(a.blockSize(bp)) - doubleSize
}

func (a *Allocator) blockSize(bp Ref) int {
	return unpackSize(a.word(a.header(bp)))
}

func (a *Allocator) isAllocated(bp Ref) bool {
	return a.word(a.header(bp))&allocatedBit != 0
}

func (a *Allocator) prevAllocated(bp Ref) bool {
	return a.word(a.header(bp))&prevAllocBit != 0
}

// nextBlock returns the physically following block.
func (a *Allocator) nextBlock(bp Ref) Ref {
	return bp + Ref(a.blockSize(bp))
}

// prevBlock returns the physically preceding block. It reads the
// predecessor's footer, so it is only valid when that block is free.
func (a *Allocator) prevBlock(bp Ref) Ref {
	return bp - Ref(unpackSize(a.word(bp-doubleSize)))
}

func (a *Allocator) writeHeader(bp Ref, size int, allocated, prevAllocated bool) {
	a.setWord(a.header(bp), pack(size, allocated, prevAllocated))
}

// writeFooter mirrors the header at the end of a free block. Allocated
// blocks omit the footer; the predecessor-allocated bit in the successor is
// how a backward scan knows not to look for one.
func (a *Allocator) writeFooter(bp Ref, size int, allocated, prevAllocated bool) {
	a.setWord(bp+Ref(size)-doubleSize, pack(size, allocated, prevAllocated))
}

// Free-list links live in the first two payload words of a free block.
func (a *Allocator) freePrev(bp Ref) Ref {
	return Ref(a.word(bp))
}

func (a *Allocator) freeNext(bp Ref) Ref {
	return Ref(a.word(bp + wordSize))
}

func (a *Allocator) setFreePrev(bp, prev Ref) {
	a.setWord(bp, uint32(prev))
}

func (a *Allocator) setFreeNext(bp, next Ref) {
	a.setWord(bp+wordSize, uint32(next))
}

// adjustSize converts a requested payload size into a block size: header
// overhead added, rounded up to the alignment unit, clamped so a later
// release can hold the free-list links and footer.
func (a *Allocator) adjustSize(requested int) int {
	asize := segheap.AlignUp(requested+wordSize, Alignment)
	if asize < minBlockSize {
		asize = minBlockSize
	}
	return asize
}

// payloadBytes returns the n-byte payload view starting at bp.
func (a *Allocator) payloadBytes(bp Ref, n int) []byte {
	data := a.mem.Data()
	end := int(bp) + n
	if end > len(data) {
		panic(fmt.Sprintf("segheap: payload access [%d, %d) outside the %d-byte arena", bp, end, len(data)))
	}
	return data[bp:end]
}
