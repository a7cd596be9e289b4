package latency

import (
	"fmt"
)

// TimingConfig holds the cycle costs charged for coherence events.
type TimingConfig struct {
	// CacheHit is the latency of a local cache access and the base
	// residency of every bus transaction. Default: 1 cycle.
	CacheHit uint64 `yaml:"cache_hit"`

	// LoadBlockFromMem is the cost of fetching a block from main memory
	// when no other cache holds it. Default: 100 cycles.
	LoadBlockFromMem uint64 `yaml:"load_block_from_mem"`

	// WriteBackMem is the cost of writing a dirty block to main memory.
	// Default: 100 cycles.
	WriteBackMem uint64 `yaml:"write_back_mem"`

	// BusUpdate is the cost of broadcasting a word update to sharers.
	// Default: 2 cycles.
	BusUpdate uint64 `yaml:"bus_update"`
}

// DefaultTimingConfig returns a TimingConfig with the default costs.
func DefaultTimingConfig() *TimingConfig {
	return &TimingConfig{
		CacheHit:         1,
		LoadBlockFromMem: 100,
		WriteBackMem:     100,
		BusUpdate:        2,
	}
}

// Validate checks that the costs are usable.
func (c *TimingConfig) Validate() error {
	if c.CacheHit == 0 {
		return fmt.Errorf("cache_hit must be > 0")
	}
	if c.LoadBlockFromMem == 0 {
		return fmt.Errorf("load_block_from_mem must be > 0")
	}
	return nil
}

// Clone returns a deep copy of the TimingConfig.
func (c *TimingConfig) Clone() *TimingConfig {
	return &TimingConfig{
		CacheHit:         c.CacheHit,
		LoadBlockFromMem: c.LoadBlockFromMem,
		WriteBackMem:     c.WriteBackMem,
		BusUpdate:        c.BusUpdate,
	}
}
