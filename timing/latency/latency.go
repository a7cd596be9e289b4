// Package latency provides the cost model for coherence transactions.
//
// Costs are expressed in cycles and can be configured via TimingConfig.
package latency

// Table provides cost lookups for one cache geometry.
type Table struct {
	config    *TimingConfig
	blockSize uint64
}

// NewTable creates a cost table with the default timing values.
func NewTable(blockSize int) *Table {
	return NewTableWithConfig(DefaultTimingConfig(), blockSize)
}

// NewTableWithConfig creates a cost table with custom timing configuration.
func NewTableWithConfig(config *TimingConfig, blockSize int) *Table {
	return &Table{
		config:    config,
		blockSize: uint64(blockSize),
	}
}

// Config returns the timing configuration.
func (t *Table) Config() *TimingConfig {
	return t.config
}

// BlockSize returns the block size in bytes.
func (t *Table) BlockSize() uint64 {
	return t.blockSize
}

// CacheHit returns the local hit latency.
func (t *Table) CacheHit() uint64 {
	return t.config.CacheHit
}

// MemoryFetch returns the cost of loading a block from memory.
func (t *Table) MemoryFetch() uint64 {
	return t.config.LoadBlockFromMem
}

// WriteBack returns the cost of writing a dirty block to memory.
func (t *Table) WriteBack() uint64 {
	return t.config.WriteBackMem
}

// BusUpdate returns the cost of broadcasting a word update.
func (t *Table) BusUpdate() uint64 {
	return t.config.BusUpdate
}

// CacheToCache returns the cost of moving a block between caches: two
// words per cycle.
func (t *Table) CacheToCache() uint64 {
	return t.blockSize / 2
}

// FlushAndTransfer returns the cost of a transfer that first has to flush
// a modified block to memory.
func (t *Table) FlushAndTransfer() uint64 {
	return max(t.CacheToCache(), t.config.WriteBackMem)
}
