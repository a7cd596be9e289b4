package cache

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// Set is a view of one set of a Cache.
type Set struct {
	cache *Cache
	index int
}

// Index returns the set index.
func (s *Set) Index() int {
	return s.index
}

func (s *Set) blockAddress(tag uint64) uint64 {
	return s.cache.BlockAddress(Address{Tag: tag, SetIndex: s.index})
}

func (s *Set) lookup(tag uint64) *akitacache.Block {
	block := s.cache.directory.Lookup(0, s.blockAddress(tag))
	if block == nil || !block.IsValid {
		return nil
	}
	return block
}

// IsHit looks tag up. On a hit the line becomes most recently used and a
// write marks it dirty.
func (s *Set) IsHit(tag uint64, isWrite bool) bool {
	block := s.lookup(tag)
	if block == nil {
		return false
	}

	s.cache.directory.Visit(block)
	if isWrite {
		block.IsDirty = true
	}

	return true
}

// FindLineReadOnly returns the valid line holding tag without touching the
// LRU order, or nil.
func (s *Set) FindLineReadOnly(tag uint64) *Line {
	block := s.lookup(tag)
	if block == nil {
		return nil
	}
	return s.cache.lineOf(block)
}

// NeedWriteBack reports whether installing tag would evict a dirty block.
func (s *Set) NeedWriteBack(tag uint64) bool {
	if s.lookup(tag) != nil {
		return false
	}

	victim := s.cache.directory.FindVictim(s.blockAddress(tag))
	return victim.IsValid && victim.IsDirty
}

// LoadLine installs tag in the least recently used slot and returns the
// line together with the extra cycles spent writing the victim back. The
// new line is valid, dirty iff isWrite, and Invalid until the caller sets
// its coherence state.
func (s *Set) LoadLine(tag uint64, isWrite bool) (*Line, uint64) {
	if block := s.lookup(tag); block != nil {
		s.IsHit(tag, isWrite)
		return s.cache.lineOf(block), 0
	}

	addr := s.blockAddress(tag)
	victim := s.cache.directory.FindVictim(addr)

	var extra uint64
	if victim.IsValid && victim.IsDirty {
		extra = s.cache.writeBackLatency
	}

	line := s.cache.lineOf(victim)
	line.Invalidate()

	victim.Tag = addr
	victim.IsValid = true
	victim.IsDirty = isWrite
	s.cache.directory.Visit(victim)

	return line, extra
}

// LRUOrder returns the way indices of the set from most to least recently
// used.
func (s *Set) LRUOrder() []int {
	queue := s.cache.directory.GetSets()[s.index].LRUQueue
	order := make([]int, 0, len(queue))
	for i := len(queue) - 1; i >= 0; i-- {
		order = append(order, queue[i].WayID)
	}
	return order
}

// Lines returns the slots of the set in way order.
func (s *Set) Lines() []*Line {
	assoc := s.cache.config.Associativity
	return s.cache.lines[s.index*assoc : (s.index+1)*assoc]
}
