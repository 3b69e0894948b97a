package alloc

import (
	cerrors "github.com/cockroachdb/errors"

	"github.com/fennelmist/segheap"
)

// Config holds the tuning knobs of the allocator. The fit parameters bound
// the best-fit search: they trade a little fragmentation for a hard cap on
// per-class scan cost and are not correctness-relevant.
type Config struct {
	// ChunkSize is the number of bytes the heap grows by when no free block
	// fits, and also the initial heap size. Must be a power of two no
	// smaller than the minimum block size. A request larger than ChunkSize
	// grows the heap by the request itself.
	ChunkSize int
	// FitSlack accepts a candidate immediately once its leftover after the
	// carve would be at most this many bytes.
	FitSlack int
	// FitDepth is the number of candidates examined within a size class
	// once a usable fit is already held.
	FitDepth int
	// SizeClasses is the number of segregated free lists. Sizes that map
	// past the last class all share it.
	SizeClasses int
}

var (
	// DefaultConfig balances allocation latency against fragmentation for
	// general-purpose workloads.
	DefaultConfig = Config{
		ChunkSize:   1 << 13,
		FitSlack:    32,
		FitDepth:    2,
		SizeClasses: 12,
	}

	// ConfigTightFit searches much deeper before settling, for workloads
	// where fragmentation matters more than allocation latency.
	ConfigTightFit = Config{
		ChunkSize:   1 << 13,
		FitSlack:    0,
		FitDepth:    32,
		SizeClasses: 16,
	}

	// ConfigFastFit takes the first workable block it sees and grows in
	// larger steps.
	ConfigFastFit = Config{
		ChunkSize:   1 << 14,
		FitSlack:    64,
		FitDepth:    1,
		SizeClasses: 12,
	}
)

func (c *Config) validate() error {
	if c.ChunkSize < minBlockSize {
		return cerrors.Errorf("chunk size %d is smaller than the %d-byte minimum block", c.ChunkSize, minBlockSize)
	}
	if err := segheap.CheckPow2(c.ChunkSize, "chunk size"); err != nil {
		return err
	}
	if c.FitSlack < 0 {
		return cerrors.Errorf("fit slack cannot be negative, got %d", c.FitSlack)
	}
	if c.FitDepth < 1 {
		return cerrors.Errorf("fit depth must examine at least one candidate, got %d", c.FitDepth)
	}
	if c.SizeClasses < 1 {
		return cerrors.Errorf("at least one size class is required, got %d", c.SizeClasses)
	}
	return nil
}
