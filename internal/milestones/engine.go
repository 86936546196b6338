package milestones

import (
	"sort"
	"time"
)

// DefaultHorizonYears covers every configured milestone family for a human
// lifetime.
const DefaultHorizonYears = 120

// Options controls one Calculate invocation.
type Options struct {
	// HorizonYears bounds generation to birth + n average years (365.25 days
	// each). Zero means DefaultHorizonYears.
	HorizonYears int
	// IncludePast keeps events that fall before Now.
	IncludePast bool
	// Now anchors the past filter; zero means time.Now. All arithmetic is UTC.
	Now time.Time
}

// Calculate turns a birth instant into the sorted set of milestone events for
// one person. It is deterministic and side-effect free: identical inputs
// always produce identical output, which the offset table and the tests rely
// on.
func Calculate(birth time.Time, opts Options) ([]Event, error) {
	if birth.IsZero() {
		return nil, ErrInvalidBirth
	}
	horizonYears := opts.HorizonYears
	if horizonYears == 0 {
		horizonYears = DefaultHorizonYears
	}
	if horizonYears < 0 {
		return nil, ErrInvalidHorizon
	}

	birth = birth.UTC()
	cutoff := birth.Add(time.Duration(int64(horizonYears)*msPerYear) * time.Millisecond)

	var events []Event
	for _, generate := range elapsedGenerators {
		events = append(events, generate(birth, cutoff)...)
	}
	for _, generate := range calendarGenerators {
		events = append(events, generate(birth, cutoff)...)
	}

	if !opts.IncludePast {
		now := opts.Now
		if now.IsZero() {
			now = time.Now()
		}
		now = now.UTC()
		filtered := events[:0]
		for _, event := range events {
			if !event.Date.Before(now) {
				filtered = append(filtered, event)
			}
		}
		events = filtered
	}

	sortEvents(events)
	return events, nil
}

// sortEvents orders by date, breaking ties on category rank then id so the
// output is stable for identical instants.
func sortEvents(events []Event) {
	sort.Slice(events, func(i, j int) bool {
		if !events[i].Date.Equal(events[j].Date) {
			return events[i].Date.Before(events[j].Date)
		}
		if events[i].Kind != events[j].Kind {
			return events[i].Kind.rank() < events[j].Kind.rank()
		}
		return events[i].ID < events[j].ID
	})
}
