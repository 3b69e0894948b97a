package alloc_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fennelmist/segheap"
	"github.com/fennelmist/segheap/alloc"
	"github.com/fennelmist/segheap/arena"
)

func newCheckedAllocator(t *testing.T) (*alloc.Allocator, *arena.SliceMemory) {
	t.Helper()

	mem, err := arena.NewSliceMemory(1 << 20)
	require.NoError(t, err)

	a, err := alloc.New(mem, nil)
	require.NoError(t, err)
	return a, mem
}

func TestValidateCleanHeap(t *testing.T) {
	a, _ := newCheckedAllocator(t)
	require.NoError(t, a.Validate())

	var refs []alloc.Ref
	for i := 0; i < 20; i++ {
		ref, err := a.Allocate(8 + i*17)
		require.NoError(t, err)
		refs = append(refs, ref)
		require.NoError(t, a.Validate())
	}
	for i, ref := range refs {
		if i%2 == 0 {
			a.Release(ref)
			require.NoError(t, a.Validate())
		}
	}
}

func TestValidateCatchesFlippedAllocatedBit(t *testing.T) {
	a, mem := newCheckedAllocator(t)

	ref, err := a.Allocate(40)
	require.NoError(t, err)
	require.NoError(t, a.Validate())

	// Flip the allocated bit in the live block's header, as a stray write
	// through a bad pointer would. The header is the word before the
	// payload; the flag bits live in its lowest byte.
	mem.Data()[int(ref)-4] ^= 0x1

	require.Error(t, a.Validate())
}

func TestValidateCatchesCorruptFreeLink(t *testing.T) {
	a, mem := newCheckedAllocator(t)

	// Make sure at least one free block exists, then find it.
	ref, err := a.Allocate(40)
	require.NoError(t, err)
	a.Release(ref)

	freeOffset := -1
	err = a.VisitBlocks(func(offset, size int, free bool) error {
		if free && freeOffset < 0 {
			freeOffset = offset
		}
		return nil
	})
	require.NoError(t, err)
	require.GreaterOrEqual(t, freeOffset, 0)

	// The first payload word of a free block is its list predecessor
	// link; smashing it breaks the link round-trip.
	mem.Data()[freeOffset] = 0xFF
	mem.Data()[freeOffset+1] = 0xFF

	require.Error(t, a.Validate())
}

func TestValidateCatchesSmashedSize(t *testing.T) {
	a, mem := newCheckedAllocator(t)

	first, err := a.Allocate(40)
	require.NoError(t, err)
	_, err = a.Allocate(40)
	require.NoError(t, err)

	// Overrunning a payload tramples the next block's header.
	payload := a.Bytes(first)
	end := int(first) + len(payload)
	mem.Data()[end] = 0x99
	mem.Data()[end+1] = 0x99

	require.Error(t, a.Validate())
}

func TestCheckConsistencyHonorsBuildTag(t *testing.T) {
	a, mem := newCheckedAllocator(t)

	ref, err := a.Allocate(24)
	require.NoError(t, err)

	// Flip the allocated bit so the heap is demonstrably corrupt.
	mem.Data()[int(ref)-4] ^= 0x1

	if !segheap.HeapCheckEnabled {
		require.NotPanics(t, func() {
			a.CheckConsistency("post-release sweep")
		})
		return
	}

	defer func() {
		recovered := recover()
		require.NotNil(t, recovered, "corrupted heap passed the consistency check")
		panicErr, ok := recovered.(error)
		require.True(t, ok)
		require.Contains(t, panicErr.Error(), "post-release sweep")
	}()
	a.CheckConsistency("post-release sweep")
}
