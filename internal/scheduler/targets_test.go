package scheduler

import (
	"testing"
	"time"

	"github.com/ptarjan/nerdiversary-sub000/internal/milestones"
)

func TestBuildTargetMapBillionSeconds(t *testing.T) {
	now := time.Date(2030, time.January, 1, 0, 0, 0, 0, time.UTC)
	offsets := []milestones.Offset{
		{ElapsedMS: 1_000_000_000_000, EventID: "round-1000000000-seconds", Label: "1 Billion Seconds"},
	}

	targets := buildTargetMap(offsets, []int{0}, now)
	if len(targets) != 1 {
		t.Fatalf("expected one target minute, got %d", len(targets))
	}

	expected := now.Add(-1_000_000_000 * time.Second).Truncate(time.Minute).Format("2006-01-02T15:04")
	pairs, ok := targets[expected]
	if !ok {
		t.Fatalf("target key %q missing, got %v", expected, targets)
	}
	if len(pairs) != 1 || pairs[0].leadMinutes != 0 || pairs[0].offset.EventID != "round-1000000000-seconds" {
		t.Fatalf("unexpected pairs %+v", pairs)
	}
}

func TestBuildTargetMapGroupsCollidingPairs(t *testing.T) {
	now := time.Date(2030, time.January, 1, 0, 0, 30, 0, time.UTC)
	// second offset differs by less than a minute, so both land on one key
	offsets := []milestones.Offset{
		{ElapsedMS: 60_000_000, EventID: "a", Label: "A"},
		{ElapsedMS: 60_020_000, EventID: "b", Label: "B"},
	}

	targets := buildTargetMap(offsets, []int{0}, now)
	if len(targets) != 1 {
		t.Fatalf("expected colliding offsets to share a minute, got %d keys", len(targets))
	}
	for _, pairs := range targets {
		if len(pairs) != 2 {
			t.Fatalf("expected both pairs under the shared key, got %+v", pairs)
		}
	}
}

func TestBuildTargetMapDeduplicatesIdenticalPairs(t *testing.T) {
	now := time.Date(2030, time.January, 1, 0, 0, 0, 0, time.UTC)
	offset := milestones.Offset{ElapsedMS: 120_000, EventID: "a", Label: "A"}

	targets := buildTargetMap([]milestones.Offset{offset, offset}, []int{0}, now)
	for _, pairs := range targets {
		if len(pairs) != 1 {
			t.Fatalf("identical pair recorded twice: %+v", pairs)
		}
	}
}

func TestBatchKeysRoundTripCount(t *testing.T) {
	keys := make([]string, 10)
	for i := range keys {
		keys[i] = time.Date(2030, time.January, 1, 0, i, 0, 0, time.UTC).Format("2006-01-02T15:04")
	}

	batches := batchKeys(keys, 3)
	if len(batches) != 4 {
		t.Fatalf("expected ⌈10/3⌉ = 4 batches, got %d", len(batches))
	}
	total := 0
	for _, batch := range batches {
		if len(batch) > 3 {
			t.Fatalf("batch exceeds size bound: %d", len(batch))
		}
		total += len(batch)
	}
	if total != len(keys) {
		t.Fatalf("batches cover %d keys, want %d", total, len(keys))
	}
}

func TestDistanceWording(t *testing.T) {
	cases := map[int]string{
		0:    "now!",
		1:    "in 1 minute",
		15:   "in 15 minutes",
		60:   "in 1 hour",
		120:  "in 2 hours",
		1440: "in 1 day",
		2880: "in 2 days",
	}
	for lead, want := range cases {
		if got := distanceWording(lead); got != want {
			t.Fatalf("distanceWording(%d) = %q, want %q", lead, got, want)
		}
	}
}
