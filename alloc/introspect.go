package alloc

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"golang.org/x/exp/slog"

	"github.com/fennelmist/segheap"
)

// AddStatistics sums this heap's coarse allocation statistics into stats.
// This is cheap; it reads counters without walking the heap.
func (a *Allocator) AddStatistics(stats *segheap.Statistics) {
	stats.HeapBytes += a.mem.Size()
	stats.AllocationCount += a.allocCount
	stats.AllocationBytes += a.mem.Size() - sentinelBytes - a.freeBytes
	stats.FreeBytes += a.freeBytes
}

// AddDetailedStatistics walks the heap and sums per-block statistics into
// stats, including free-range fragmentation extremes.
func (a *Allocator) AddDetailedStatistics(stats *segheap.DetailedStatistics) {
	stats.HeapBytes += a.mem.Size()

	_ = a.VisitBlocks(func(offset, size int, free bool) error {
		if free {
			stats.AddFreeRange(size)
		} else {
			stats.AddAllocation(size)
		}
		return nil
	})
}

// WriteHeapJSON populates a json object with a full map of the heap: totals
// followed by one entry per block in address order.
func (a *Allocator) WriteHeapJSON(json jwriter.ObjectState) {
	var stats segheap.DetailedStatistics
	stats.Clear()
	a.AddDetailedStatistics(&stats)

	json.Name("HeapBytes").Int(a.mem.Size())
	json.Name("Allocations").Int(stats.AllocationCount)
	json.Name("AllocatedBytes").Int(stats.AllocationBytes)
	json.Name("FreeRanges").Int(stats.FreeRangeCount)
	json.Name("FreeBytes").Int(stats.FreeBytes)

	arrayState := json.Name("Blocks").Array()
	defer arrayState.End()

	_ = a.VisitBlocks(func(offset, size int, free bool) error {
		obj := arrayState.Object()
		defer obj.End()

		obj.Name("Offset").Int(offset)
		obj.Name("Size").Int(size)
		if free {
			obj.Name("Type").String("Free")
		} else {
			obj.Name("Type").String("Allocated")
		}

		return nil
	})
}

// DebugLogAllocations calls logFunc for every live allocation in the heap.
func (a *Allocator) DebugLogAllocations(logger *slog.Logger, logFunc func(log *slog.Logger, offset int, size int)) {
	_ = a.VisitBlocks(func(offset, size int, free bool) error {
		if !free {
			logFunc(logger, offset, size)
		}
		return nil
	})
}
