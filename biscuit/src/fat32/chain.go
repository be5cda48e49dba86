package fat32

// ChainCache_t is a per-file in-core cluster-chain cache overlaying a
// FAT view, grounded on fat32_fs/src/chain.rs's Chain: once a file's
// full chain has been walked (by Fill), sequential and random access
// within it are O(1)/O(index) against the cached slice instead of
// re-walking the FAT one link at a time, per spec.md §4.11 "a simple
// in-core chain cache to avoid repeated FAT walks for sequential I/O".
type ChainCache_t struct {
	chain   []uint32
	indexOf map[uint32]int
}

/// NewChainCache builds an empty cache (chain.rs's Chain::new).
func NewChainCache() *ChainCache_t {
	return &ChainCache_t{indexOf: make(map[uint32]int)}
}

/// Fill populates the cache with start's full chain, read from fat once.
func (c *ChainCache_t) Fill(start uint32, fat *FAT) {
	c.chain = fat.AllClusters(start)
	c.indexOf = make(map[uint32]int, len(c.chain))
	for i, cl := range c.chain {
		c.indexOf[cl] = i
	}
}

/// ClearAll empties the cache (chain.rs's clear_all), used when the
/// chain is about to change shape (grow/shrink) and the cache would go
/// stale.
func (c *ChainCache_t) ClearAll() {
	c.chain = nil
	c.indexOf = make(map[uint32]int)
}

/// Filled reports whether Fill has populated the cache yet.
func (c *ChainCache_t) Filled() bool { return c.chain != nil }

func (c *ChainCache_t) has(start uint32) bool {
	_, ok := c.indexOf[start]
	return ok
}

/// NextCluster returns cluster's successor, consulting the cache if
/// start is cached, falling back to fat otherwise.
func (c *ChainCache_t) NextCluster(start, cluster uint32, fat *FAT) uint32 {
	if c.has(start) {
		idx, ok := c.indexOf[cluster]
		if !ok || idx+1 >= len(c.chain) {
			return EndCluster
		}
		return c.chain[idx+1]
	}
	return fat.NextCluster(cluster)
}

/// ClusterAt returns the index-th cluster of start's chain.
func (c *ChainCache_t) ClusterAt(start uint32, index int, fat *FAT) uint32 {
	if c.has(start) {
		idx := c.indexOf[start] + index
		if idx >= len(c.chain) {
			return 0
		}
		return c.chain[idx]
	}
	return fat.ClusterAt(start, index)
}

/// FinalOf returns start's chain-terminal cluster.
func (c *ChainCache_t) FinalOf(start uint32, fat *FAT) uint32 {
	if c.has(start) {
		return c.chain[len(c.chain)-1]
	}
	return fat.FinalOf(start)
}

/// AllClusters returns every cluster of start's chain.
func (c *ChainCache_t) AllClusters(start uint32, fat *FAT) []uint32 {
	if c.has(start) {
		out := make([]uint32, len(c.chain))
		copy(out, c.chain)
		return out
	}
	return fat.AllClusters(start)
}

/// Count returns the number of clusters in start's chain.
func (c *ChainCache_t) Count(start uint32, fat *FAT) uint32 {
	if c.has(start) {
		return uint32(len(c.chain))
	}
	return fat.Count(start)
}
