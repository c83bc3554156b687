package store

import (
	"strconv"
	"sync/atomic"

	"github.com/dgraph-io/ristretto/v2"
)

// searchCache holds Search results keyed by the store's write generation.
// Every committed write bumps the generation, so stale entries are never
// hit again and age out of the cache on their own.
type searchCache struct {
	c   *ristretto.Cache[string, []Memory]
	gen atomic.Uint64
}

func newSearchCache(maxCostBytes int64) (*searchCache, error) {
	if maxCostBytes <= 0 {
		return &searchCache{}, nil
	}
	counters := maxCostBytes / 1024 * 10
	if counters < 1000 {
		counters = 1000
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []Memory]{
		NumCounters: counters,
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &searchCache{c: c}, nil
}

func (sc *searchCache) key(q Query, limit int) string {
	return strconv.FormatUint(sc.gen.Load(), 10) + "|" + strconv.Itoa(limit) + "|" + q.cacheKey()
}

func (sc *searchCache) get(key string) ([]Memory, bool) {
	if sc.c == nil {
		return nil, false
	}
	v, ok := sc.c.Get(key)
	if !ok {
		return nil, false
	}
	return cloneMemories(v), true
}

func (sc *searchCache) set(key string, results []Memory) {
	if sc.c == nil {
		return
	}
	sc.c.Set(key, cloneMemories(results), resultCost(results))
	sc.c.Wait()
}

// invalidate is called after every committed write.
func (sc *searchCache) invalidate() {
	sc.gen.Add(1)
}

func (sc *searchCache) close() {
	if sc.c != nil {
		sc.c.Close()
	}
}

func resultCost(results []Memory) int64 {
	cost := int64(64)
	for _, m := range results {
		cost += 256 + int64(len(m.ImagePath))
		if m.ExtractedText != nil {
			cost += int64(len(*m.ExtractedText))
		}
		for _, t := range m.Tags {
			cost += int64(len(t))
		}
	}
	return cost
}

func cloneMemories(in []Memory) []Memory {
	out := make([]Memory, len(in))
	copy(out, in)
	for i := range out {
		out[i].Tags = append([]string(nil), in[i].Tags...)
		if out[i].Tags == nil {
			out[i].Tags = []string{}
		}
	}
	return out
}
