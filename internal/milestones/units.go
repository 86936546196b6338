package milestones

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
)

// Fixed average-year arithmetic. The horizon cutoff and every elapsed-duration
// milestone use these lengths; true calendar years are only used by the
// calendar-based generators.
const (
	msPerSecond int64 = 1000
	msPerMinute int64 = 60 * msPerSecond
	msPerHour   int64 = 60 * msPerMinute
	msPerDay    int64 = 24 * msPerHour
	msPerWeek   int64 = 7 * msPerDay
	msPerYear   int64 = 365*msPerDay + msPerDay/4 // 365.25 days
	msPerMonth  int64 = msPerYear / 12
)

type timeUnit struct {
	name     string // plural, as shown in titles
	slug     string // id fragment
	ms       int64
	seqRange [2]int64 // inclusive-exclusive value range for sequence milestones
}

// elapsedUnits are every unit the elapsed-duration generators iterate over.
// The sequence ranges are disjoint filters per unit so a sequence value shows
// up in at most the one unit where its magnitude reads naturally.
var elapsedUnits = []timeUnit{
	{name: "Seconds", slug: "seconds", ms: msPerSecond, seqRange: [2]int64{100_000_000, 10_000_000_000}},
	{name: "Minutes", slug: "minutes", ms: msPerMinute, seqRange: [2]int64{1_000_000, 100_000_000}},
	{name: "Hours", slug: "hours", ms: msPerHour, seqRange: [2]int64{10_000, 1_000_000}},
	{name: "Days", slug: "days", ms: msPerDay, seqRange: [2]int64{365, 10_000}},
	{name: "Weeks", slug: "weeks", ms: msPerWeek, seqRange: [2]int64{52, 365}},
	{name: "Months", slug: "months", ms: msPerMonth, seqRange: [2]int64{12, 52}},
	{name: "Years", slug: "years", ms: msPerYear, seqRange: [2]int64{6, 12}},
}

func (u timeUnit) inSeqRange(value int64) bool {
	return value >= u.seqRange[0] && value < u.seqRange[1]
}

// maxCount bounds unit counts so elapsed milliseconds never overflow int64.
func (u timeUnit) maxCount() int64 {
	return math.MaxInt64 / u.ms
}

// magnitudeNames names exact powers of ten for titles ("1 Billion Seconds").
var magnitudeNames = map[int64]string{
	1_000_000:             "Million",
	1_000_000_000:         "Billion",
	1_000_000_000_000:     "Trillion",
	1_000_000_000_000_000: "Quadrillion",
}

// formatCount renders a unit count for a title: named magnitudes where they
// exist ("5 Billion", "2.5 Million"), grouped digits otherwise ("12,345").
func formatCount(value int64) string {
	for magnitude, name := range magnitudeNames {
		if value%magnitude == 0 {
			leading := value / magnitude
			if leading >= 1 && leading < 1000 {
				return fmt.Sprintf("%d %s", leading, name)
			}
		}
		tenth := magnitude / 10
		if value%tenth == 0 {
			tenths := value / tenth
			if tenths%10 == 5 && tenths >= 10 && tenths < 10_000 {
				return fmt.Sprintf("%d.5 %s", tenths/10, name)
			}
		}
	}
	return humanize.Comma(value)
}
