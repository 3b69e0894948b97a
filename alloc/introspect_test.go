package alloc_test

import (
	"encoding/json"
	"testing"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"github.com/fennelmist/segheap"
)

type heapMap struct {
	HeapBytes      int
	Allocations    int
	AllocatedBytes int
	FreeRanges     int
	FreeBytes      int
	Blocks         []struct {
		Offset int
		Size   int
		Type   string
	}
}

func TestWriteHeapJSON(t *testing.T) {
	a := newTestAllocator(t)

	first, err := a.Allocate(24)
	require.NoError(t, err)
	second, err := a.Allocate(40)
	require.NoError(t, err)
	a.Release(first)

	writer := jwriter.NewWriter()
	obj := writer.Object()
	a.WriteHeapJSON(obj)
	obj.End()
	require.NoError(t, writer.Error())

	var heap heapMap
	require.NoError(t, json.Unmarshal(writer.Bytes(), &heap))

	require.Equal(t, 1, heap.Allocations)
	require.Positive(t, heap.FreeRanges)
	require.Positive(t, heap.FreeBytes)
	require.Positive(t, heap.HeapBytes)

	blockTotal := 0
	var foundLive bool
	for _, block := range heap.Blocks {
		require.Contains(t, []string{"Free", "Allocated"}, block.Type)
		require.Positive(t, block.Size)
		blockTotal += block.Size
		if block.Type == "Allocated" && block.Offset == int(second) {
			foundLive = true
		}
	}
	require.True(t, foundLive, "live allocation missing from the heap map")

	// Every byte outside the sentinels belongs to exactly one block.
	require.Equal(t, heap.AllocatedBytes+heap.FreeBytes, blockTotal)
}

func TestDetailedStatisticsExtremes(t *testing.T) {
	a := newTestAllocator(t)

	small, err := a.Allocate(12)
	require.NoError(t, err)
	large, err := a.Allocate(200)
	require.NoError(t, err)
	_ = large

	var stats segheap.DetailedStatistics
	stats.Clear()
	a.AddDetailedStatistics(&stats)

	require.Equal(t, 2, stats.AllocationCount)
	require.Equal(t, 16, stats.AllocationSizeMin)
	require.GreaterOrEqual(t, stats.AllocationSizeMax, 200)
	require.LessOrEqual(t, stats.FreeRangeSizeMin, stats.FreeRangeSizeMax)

	a.Release(small)
}

func TestDebugLogAllocations(t *testing.T) {
	a := newTestAllocator(t)

	ref, err := a.Allocate(64)
	require.NoError(t, err)

	logger := slog.Default()
	var offsets []int
	a.DebugLogAllocations(logger, func(log *slog.Logger, offset int, size int) {
		require.NotNil(t, log)
		require.Positive(t, size)
		offsets = append(offsets, offset)
	})

	require.Equal(t, []int{int(ref)}, offsets)
}
