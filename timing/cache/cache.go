// Package cache provides the private per-core cache model using Akita cache
// components. The Akita directory keeps tags and LRU order; this package
// layers coherence states on top of its blocks.
package cache

import (
	"fmt"
	"math/bits"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// Config holds cache geometry.
type Config struct {
	// Size in bytes
	Size int `yaml:"size"`
	// Associativity (number of ways)
	Associativity int `yaml:"associativity"`
	// BlockSize in bytes (cache line size)
	BlockSize int `yaml:"block_size"`
}

// DefaultConfig returns a 4KB, 2-way cache with 32B lines.
func DefaultConfig() Config {
	return Config{
		Size:          4 * 1024,
		Associativity: 2,
		BlockSize:     32,
	}
}

// NumSets returns the number of sets implied by the geometry.
func (c Config) NumSets() int {
	return c.Size / (c.Associativity * c.BlockSize)
}

// Validate checks that the geometry describes a realizable cache.
func (c Config) Validate() error {
	if c.Size <= 0 || c.Associativity <= 0 || c.BlockSize <= 0 {
		return fmt.Errorf("cache size, associativity and block size must be > 0")
	}
	if !isPowerOfTwo(c.BlockSize) {
		return fmt.Errorf("block size %d is not a power of two", c.BlockSize)
	}
	if c.BlockSize < 4 {
		return fmt.Errorf("block size %d is smaller than a word", c.BlockSize)
	}
	if c.Size%(c.Associativity*c.BlockSize) != 0 {
		return fmt.Errorf("cache size %d is not a multiple of associativity*block size (%d)",
			c.Size, c.Associativity*c.BlockSize)
	}
	if !isPowerOfTwo(c.NumSets()) {
		return fmt.Errorf("number of sets %d is not a power of two", c.NumSets())
	}
	return nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Address is a memory address split into the parts the cache indexes by.
type Address struct {
	Tag      uint64
	SetIndex int
}

func (a Address) String() string {
	return fmt.Sprintf("tag=%#x set=%d", a.Tag, a.SetIndex)
}

// Access classifies a probe against the local cache.
type Access uint8

const (
	// AccessHit is served locally without the bus.
	AccessHit Access = iota
	// AccessLocalUpgrade is a write to an Exclusive line. The line moves to
	// Modified without a bus transaction.
	AccessLocalUpgrade
	// AccessUpgrade is a write to a line held in a shared state. The block
	// is present but peers must be told.
	AccessUpgrade
	// AccessMiss means the block is absent.
	AccessMiss
)

var accessNames = [...]string{"hit", "local-upgrade", "upgrade", "miss"}

func (a Access) String() string {
	if int(a) < len(accessNames) {
		return accessNames[a]
	}
	return "unknown"
}

// NeedsBus reports whether the access has to go through the bus.
func (a Access) NeedsBus() bool {
	return a == AccessUpgrade || a == AccessMiss
}

// AccessResult contains the result of a cache access.
type AccessResult struct {
	// Kind classifies the access.
	Kind Access
	// Hit indicates the access completes locally.
	Hit bool
	// Latency is the number of cycles a local access takes.
	Latency uint64
	// State is the line state after a local access.
	State State
}

// Cache is a set-associative, LRU, write-back cache whose lines carry a
// coherence state.
type Cache struct {
	config Config

	// Akita cache directory for tag/LRU management
	directory *akitacache.DirectoryImpl

	// Coherence view of each block, indexed by (setID * associativity + wayID)
	lines []*Line

	offsetBits uint
	setBits    uint

	writeBackLatency uint64
}

// New creates a cache. Evicting a dirty block costs writeBackLatency cycles.
func New(config Config, writeBackLatency uint64) (*Cache, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	numSets := config.NumSets()
	c := &Cache{
		config: config,
		directory: akitacache.NewDirectory(
			numSets,
			config.Associativity,
			config.BlockSize,
			akitacache.NewLRUVictimFinder(),
		),
		offsetBits:       uint(bits.TrailingZeros(uint(config.BlockSize))),
		setBits:          uint(bits.TrailingZeros(uint(numSets))),
		writeBackLatency: writeBackLatency,
	}
	c.bindLines()

	return c, nil
}

func (c *Cache) bindLines() {
	c.lines = make([]*Line, c.config.NumSets()*c.config.Associativity)
	for _, set := range c.directory.GetSets() {
		for _, block := range set.Blocks {
			c.lines[c.blockIndex(block)] = &Line{
				block:    block,
				tagShift: c.offsetBits + c.setBits,
			}
		}
	}
}

// Config returns the cache configuration.
func (c *Cache) Config() Config {
	return c.config
}

// NumSets returns the number of sets.
func (c *Cache) NumSets() int {
	return c.config.NumSets()
}

// blockIndex computes the index into lines for a block.
func (c *Cache) blockIndex(block *akitacache.Block) int {
	return block.SetID*c.config.Associativity + block.WayID
}

func (c *Cache) lineOf(block *akitacache.Block) *Line {
	return c.lines[c.blockIndex(block)]
}

// ParseAddress splits a byte address into tag and set index.
func (c *Cache) ParseAddress(addr uint64) Address {
	setMask := uint64(1)<<c.setBits - 1
	return Address{
		Tag:      addr >> (c.offsetBits + c.setBits),
		SetIndex: int((addr >> c.offsetBits) & setMask),
	}
}

// BlockAddress reassembles the block-aligned byte address of a parsed
// address.
func (c *Cache) BlockAddress(addr Address) uint64 {
	return (addr.Tag<<c.setBits | uint64(addr.SetIndex)) << c.offsetBits
}

// Set returns the set with the given index.
func (c *Cache) Set(index int) *Set {
	if index < 0 || index >= c.NumSets() {
		panic(fmt.Sprintf("set index %d out of range", index))
	}
	return &Set{cache: c, index: index}
}

// Line returns the valid line holding addr, or nil.
func (c *Cache) Line(addr Address) *Line {
	return c.Set(addr.SetIndex).FindLineReadOnly(addr.Tag)
}

// Probe classifies an access without changing any state.
func (c *Cache) Probe(addr Address, isWrite bool) Access {
	line := c.Line(addr)
	switch {
	case line == nil:
		return AccessMiss
	case !isWrite || line.State() == Modified:
		return AccessHit
	case line.State() == Exclusive:
		return AccessLocalUpgrade
	default:
		return AccessUpgrade
	}
}

// ForEachValidLine visits every valid line in set and way order.
func (c *Cache) ForEachValidLine(visit func(addr Address, line *Line)) {
	for _, line := range c.lines {
		if !line.Valid() {
			continue
		}
		visit(Address{Tag: line.Tag(), SetIndex: line.block.SetID}, line)
	}
}

// Reset drops every block.
func (c *Cache) Reset() {
	c.directory.Reset()
	c.bindLines()
}
