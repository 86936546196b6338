package milestones

import (
	"testing"
	"time"
)

func TestBuildOffsetTableIsDeterministic(t *testing.T) {
	first, err := BuildOffsetTable(DefaultHorizonYears)
	if err != nil {
		t.Fatalf("first build failed: %v", err)
	}
	second, err := BuildOffsetTable(DefaultHorizonYears)
	if err != nil {
		t.Fatalf("second build failed: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("offset counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("offset %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestBuildOffsetTableExcludesCalendarEvents(t *testing.T) {
	offsets, err := BuildOffsetTable(DefaultHorizonYears)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if len(offsets) == 0 {
		t.Fatal("expected a non-empty offset table")
	}
	for _, offset := range offsets {
		if offset.ElapsedMS <= 0 {
			t.Fatalf("offset %q has non-positive elapsed %d", offset.Label, offset.ElapsedMS)
		}
		if offset.Label == "Pi Day" || offset.Label == "1st Birthday" {
			t.Fatalf("calendar-based milestone %q leaked into the offset table", offset.Label)
		}
	}
}

func TestBillionSecondsOffsetValue(t *testing.T) {
	offsets, err := BuildOffsetTable(DefaultHorizonYears)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	for _, offset := range offsets {
		if offset.Label == "1 Billion Seconds" {
			if offset.ElapsedMS != 1_000_000_000_000 {
				t.Fatalf("1 billion seconds offset = %d ms, want 1e12", offset.ElapsedMS)
			}
			return
		}
	}
	t.Fatal("1 Billion Seconds offset missing")
}

func TestOffsetRoundTripPreservesMinute(t *testing.T) {
	now := time.Date(2030, time.January, 1, 0, 0, 0, 0, time.UTC)
	const leadMinutes = 60
	// 1e12 ms is not minute-aligned (40s residue), so flooring the target
	// minute shifts the recovered instant up to a minute before now.
	offset := Offset{ElapsedMS: 1_000_000_000_000, Label: "1 Billion Seconds"}

	target := now.Add(-time.Duration(offset.ElapsedMS) * time.Millisecond).
		Add(leadMinutes * time.Minute).
		Truncate(time.Minute)
	recovered := target.Add(time.Duration(offset.ElapsedMS) * time.Millisecond).
		Add(-leadMinutes * time.Minute)

	drift := now.Sub(recovered)
	if drift < 0 || drift >= time.Minute {
		t.Fatalf("recovered instant drifted %v from now", drift)
	}

	// re-deriving the target from the recovered instant lands on the same
	// minute key, which is what keeps floored stored births matchable
	rederived := recovered.Add(-time.Duration(offset.ElapsedMS) * time.Millisecond).
		Add(leadMinutes * time.Minute).
		Truncate(time.Minute)
	if !rederived.Equal(target) {
		t.Fatalf("re-derived target %v, want %v", rederived, target)
	}
}
