package milestones

import (
	"fmt"
	"time"
)

// ReferenceBirth is the canonical birth instant the offset table is derived
// from. The choice is arbitrary; determinism is what matters.
var ReferenceBirth = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// Offset is the fixed elapsed distance from any birth instant to one
// duration-based milestone. Calendar-based events recur by date and cannot be
// expressed this way, so they never appear in the table.
type Offset struct {
	ElapsedMS int64
	EventID   string
	Label     string
	Icon      string
}

// BuildOffsetTable derives the reusable offset table by running the engine
// once against the reference birth. Callers build it at startup and hand the
// scheduler the resulting slice; it must not be mutated afterwards.
func BuildOffsetTable(horizonYears int) ([]Offset, error) {
	if horizonYears < DefaultHorizonYears {
		horizonYears = DefaultHorizonYears
	}
	events, err := Calculate(ReferenceBirth, Options{
		HorizonYears: horizonYears,
		IncludePast:  true,
		Now:          ReferenceBirth,
	})
	if err != nil {
		return nil, fmt.Errorf("milestones: building offset table: %w", err)
	}

	offsets := make([]Offset, 0, len(events))
	for _, event := range events {
		if event.CalendarBased {
			continue
		}
		elapsed := event.Date.Sub(ReferenceBirth).Milliseconds()
		if elapsed <= 0 {
			continue
		}
		offsets = append(offsets, Offset{
			ElapsedMS: elapsed,
			EventID:   event.ID,
			Label:     event.Title,
			Icon:      event.Icon,
		})
	}
	return offsets, nil
}
