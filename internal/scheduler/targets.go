package scheduler

import (
	"sort"
	"time"

	"github.com/ptarjan/nerdiversary-sub000/internal/milestones"
	"github.com/ptarjan/nerdiversary-sub000/internal/subscribers"
)

// targetPair records which (offset, lead) combination produced a target birth
// minute.
type targetPair struct {
	offset      milestones.Offset
	leadMinutes int
}

// buildTargetMap computes, for one tick, every birth minute that would have a
// duration-based milestone at one of the configured lead times. The map is
// tick-scoped and its size is O(offsets × leads) regardless of how many
// subscribers exist. Offsets need not be minute-aligned: flooring drops the
// sub-minute residue, and stored births are floored the same way, so the keys
// still line up.
func buildTargetMap(offsets []milestones.Offset, leadMinutes []int, now time.Time) map[string][]targetPair {
	now = now.UTC()
	targets := make(map[string][]targetPair, len(offsets)*len(leadMinutes))
	type pairKey struct {
		eventID     string
		leadMinutes int
	}
	seen := make(map[string]map[pairKey]struct{})

	for _, offset := range offsets {
		for _, lead := range leadMinutes {
			target := now.
				Add(-time.Duration(offset.ElapsedMS) * time.Millisecond).
				Add(time.Duration(lead) * time.Minute).
				Truncate(time.Minute)
			key := target.Format(subscribers.BirthLayout)

			dedupe := seen[key]
			if dedupe == nil {
				dedupe = make(map[pairKey]struct{})
				seen[key] = dedupe
			}
			pk := pairKey{eventID: offset.EventID, leadMinutes: lead}
			if _, duplicate := dedupe[pk]; duplicate {
				continue
			}
			dedupe[pk] = struct{}{}
			targets[key] = append(targets[key], targetPair{offset: offset, leadMinutes: lead})
		}
	}
	return targets
}

// sortedKeys gives the batching a deterministic order.
func sortedKeys(targets map[string][]targetPair) []string {
	keys := make([]string, 0, len(targets))
	for key := range targets {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// batchKeys splits keys into groups of at most size, matching the store's
// parameter-count bound. ⌈N/size⌉ batches means ⌈N/size⌉ round trips.
func batchKeys(keys []string, size int) [][]string {
	if size <= 0 {
		size = 1
	}
	var batches [][]string
	for start := 0; start < len(keys); start += size {
		end := start + size
		if end > len(keys) {
			end = len(keys)
		}
		batches = append(batches, keys[start:end])
	}
	return batches
}
