package alloc_test

import (
	"math"
	"testing"

	cerrors "github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/fennelmist/segheap/alloc"
)

func fillPattern(payload []byte, seed byte) {
	for i := range payload {
		payload[i] = seed + byte(i)
	}
}

func requirePattern(t *testing.T, payload []byte, seed byte, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.Equal(t, seed+byte(i), payload[i], "payload byte %d", i)
	}
}

func TestResizeGrowInPlace(t *testing.T) {
	a := newTestAllocator(t)

	ref, err := a.Allocate(64)
	require.NoError(t, err)
	fillPattern(a.Bytes(ref)[:64], 3)

	// The block physically precedes a large free region, so growing must
	// not move it.
	grown, err := a.Resize(ref, 600)
	require.NoError(t, err)
	require.Equal(t, ref, grown)
	require.GreaterOrEqual(t, a.PayloadSize(grown), 600)
	requirePattern(t, a.Bytes(grown), 3, 64)

	require.NoError(t, a.Validate())
}

func TestResizeShrinkInPlace(t *testing.T) {
	a := newTestAllocator(t)

	ref, err := a.Allocate(256)
	require.NoError(t, err)
	fillPattern(a.Bytes(ref)[:256], 11)

	shrunk, err := a.Resize(ref, 32)
	require.NoError(t, err)
	require.Equal(t, ref, shrunk)
	require.GreaterOrEqual(t, a.PayloadSize(shrunk), 32)
	requirePattern(t, a.Bytes(shrunk), 11, 32)

	// The trailing remainder went back to the heap.
	require.NoError(t, a.Validate())
}

func TestResizeCopyFallback(t *testing.T) {
	a := newTestAllocator(t)

	// First and third allocations are physical neighbors under the
	// alternating placement policy, so first cannot grow in place.
	first, err := a.Allocate(24)
	require.NoError(t, err)
	_, err = a.Allocate(24)
	require.NoError(t, err)
	blocker, err := a.Allocate(24)
	require.NoError(t, err)

	fillPattern(a.Bytes(first)[:24], 7)

	moved, err := a.Resize(first, 2000)
	require.NoError(t, err)
	require.NotEqual(t, first, moved)
	requirePattern(t, a.Bytes(moved), 7, 24)

	require.NoError(t, a.Validate())

	a.Release(moved)
	a.Release(blocker)
	require.NoError(t, a.Validate())
}

func TestResizeShrinkPreservesPrefix(t *testing.T) {
	a := newTestAllocator(t)

	ref, err := a.Allocate(500)
	require.NoError(t, err)
	fillPattern(a.Bytes(ref)[:500], 29)

	shrunk, err := a.Resize(ref, 100)
	require.NoError(t, err)
	requirePattern(t, a.Bytes(shrunk), 29, 100)
}

func TestResizeNullAllocates(t *testing.T) {
	a := newTestAllocator(t)

	ref, err := a.Resize(alloc.NullRef, 48)
	require.NoError(t, err)
	require.NotEqual(t, alloc.NullRef, ref)
	require.GreaterOrEqual(t, a.PayloadSize(ref), 48)
}

func TestResizeToZeroReleases(t *testing.T) {
	a := newTestAllocator(t)

	ref, err := a.Allocate(128)
	require.NoError(t, err)
	require.Equal(t, 1, a.AllocationCount())

	gone, err := a.Resize(ref, 0)
	require.NoError(t, err)
	require.Equal(t, alloc.NullRef, gone)
	require.Zero(t, a.AllocationCount())
	require.NoError(t, a.Validate())
}

func TestResizeAbsorbsExactNeighbor(t *testing.T) {
	a := newTestAllocator(t)

	// Carve a hole of known size between two allocations, then grow into
	// it exactly.
	first, err := a.Allocate(24)
	require.NoError(t, err)
	_, err = a.Allocate(24)
	require.NoError(t, err)
	hole, err := a.Allocate(24)
	require.NoError(t, err)
	_, err = a.Allocate(24)
	require.NoError(t, err)
	guard, err := a.Allocate(24)
	require.NoError(t, err)
	require.Greater(t, guard, hole)

	holeSize := a.PayloadSize(hole)
	a.Release(hole)

	// Growing the block before the hole consumes it whole.
	grown, err := a.Resize(first, a.PayloadSize(first)+holeSize+4)
	require.NoError(t, err)
	require.Equal(t, first, grown)
	require.NoError(t, a.Validate())
}

func TestResizeHugeSizeFails(t *testing.T) {
	a := newTestAllocator(t)

	ref, err := a.Allocate(24)
	require.NoError(t, err)
	fillPattern(a.Bytes(ref), 11)

	resized, err := a.Resize(ref, math.MaxInt)
	require.Error(t, err)
	require.True(t, cerrors.Is(err, alloc.ErrOutOfMemory))
	require.Equal(t, alloc.NullRef, resized)

	// The failed resize leaves the block live and untouched.
	requirePattern(t, a.Bytes(ref), 11, 24)
	require.NoError(t, a.Validate())
	a.Release(ref)
}
