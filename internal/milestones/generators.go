package milestones

import (
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"
)

// Every generator is a pure function of the birth instant and the horizon
// cutoff. The engine combines them by concatenation and a single sort; no
// generator sees another generator's output.
type generator func(birth, cutoff time.Time) []Event

var elapsedGenerators = []generator{
	roundCountEvents,
	binaryCountEvents,
	hexCountEvents,
	mathConstantEvents,
	sequenceEvents,
	scienceEvents,
	planetYearEvents,
}

// minElapsed keeps infancy trivia ("100 minutes old") out of every
// elapsed-duration family.
const minElapsed = 30 * 24 * time.Hour

func elapsedEvent(birth time.Time, elapsedMS int64, id, title, description string, kind Kind, icon string) Event {
	if icon == "" {
		icon = kind.Icon()
	}
	return Event{
		ID:          id,
		Title:       title,
		Description: description,
		Date:        birth.Add(time.Duration(elapsedMS) * time.Millisecond),
		Kind:        kind,
		Icon:        icon,
	}
}

func withinWindow(birth, cutoff time.Time, elapsedMS int64) bool {
	if elapsedMS <= 0 || time.Duration(elapsedMS)*time.Millisecond < minElapsed {
		return false
	}
	return !birth.Add(time.Duration(elapsedMS) * time.Millisecond).After(cutoff)
}

// roundCountEvents emits 1, 2.5 and 5 × 10^n counts of every elapsed unit.
func roundCountEvents(birth, cutoff time.Time) []Event {
	var events []Event
	for _, unit := range elapsedUnits {
		for exponent := 2; exponent <= 15; exponent++ {
			power := int64(math.Pow10(exponent))
			for _, count := range []int64{power, power / 10 * 25, 5 * power} {
				if count > unit.maxCount() {
					continue
				}
				elapsed := count * unit.ms
				if !withinWindow(birth, cutoff, elapsed) {
					continue
				}
				title := fmt.Sprintf("%s %s", formatCount(count), unit.name)
				events = append(events, elapsedEvent(birth, elapsed,
					fmt.Sprintf("round-%d-%s", count, unit.slug),
					title,
					fmt.Sprintf("%s %s since birth", humanize.Comma(count), unit.slug),
					KindRoundCount, ""))
			}
		}
	}
	return events
}

// binaryCountEvents emits 2^n counts of seconds, minutes, hours and days.
func binaryCountEvents(birth, cutoff time.Time) []Event {
	var events []Event
	for _, unit := range elapsedUnits[:4] {
		for exponent := 10; exponent <= 44; exponent++ {
			count := int64(1) << uint(exponent)
			if count > unit.maxCount() {
				continue
			}
			elapsed := count * unit.ms
			if !withinWindow(birth, cutoff, elapsed) {
				continue
			}
			events = append(events, elapsedEvent(birth, elapsed,
				fmt.Sprintf("binary-pow%d-%s", exponent, unit.slug),
				fmt.Sprintf("2^%d %s", exponent, unit.name),
				fmt.Sprintf("%s %s since birth, a power of two", humanize.Comma(count), unit.slug),
				KindBinaryCount, ""))
		}
	}
	return events
}

// hexCountEvents emits 16^n counts, titled in hexadecimal.
func hexCountEvents(birth, cutoff time.Time) []Event {
	var events []Event
	for _, unit := range elapsedUnits[:4] {
		for exponent := 3; exponent <= 9; exponent++ {
			count := int64(1)
			for i := 0; i < exponent; i++ {
				count *= 16
			}
			if count > unit.maxCount() {
				continue
			}
			elapsed := count * unit.ms
			if !withinWindow(birth, cutoff, elapsed) {
				continue
			}
			events = append(events, elapsedEvent(birth, elapsed,
				fmt.Sprintf("hex-pow%d-%s", exponent, unit.slug),
				fmt.Sprintf("0x%X %s", count, unit.name),
				fmt.Sprintf("%s %s since birth, a power of sixteen", humanize.Comma(count), unit.slug),
				KindHexCount, ""))
		}
	}
	return events
}

type mathConstant struct {
	symbol string
	slug   string
	value  float64
}

var mathConstants = []mathConstant{
	{symbol: "π", slug: "pi", value: math.Pi},
	{symbol: "τ", slug: "tau", value: 2 * math.Pi},
	{symbol: "e", slug: "e", value: math.E},
	{symbol: "φ", slug: "phi", value: math.Phi},
	{symbol: "√2", slug: "sqrt2", value: math.Sqrt2},
}

// mathConstantEvents emits constant×10^n seconds and days.
func mathConstantEvents(birth, cutoff time.Time) []Event {
	type span struct {
		unit      timeUnit
		exponents [2]int
	}
	spans := []span{
		{unit: elapsedUnits[0], exponents: [2]int{6, 10}}, // seconds
		{unit: elapsedUnits[3], exponents: [2]int{2, 4}},  // days
	}

	var events []Event
	for _, constant := range mathConstants {
		for _, s := range spans {
			for exponent := s.exponents[0]; exponent <= s.exponents[1]; exponent++ {
				count := int64(math.Round(constant.value * math.Pow10(exponent)))
				elapsed := count * s.unit.ms
				if !withinWindow(birth, cutoff, elapsed) {
					continue
				}
				events = append(events, elapsedEvent(birth, elapsed,
					fmt.Sprintf("math-%s-e%d-%s", constant.slug, exponent, s.unit.slug),
					fmt.Sprintf("%s × 10^%d %s", constant.symbol, exponent, s.unit.name),
					fmt.Sprintf("%s %s since birth", humanize.Comma(count), s.unit.slug),
					KindMathConstant, ""))
			}
		}
	}
	return events
}

// sequenceEvents maps each integer sequence across every unit, filtered by the
// unit's value range so each value lands in one unit at most.
func sequenceEvents(birth, cutoff time.Time) []Event {
	var events []Event
	for _, sequence := range integerSequences {
		for _, value := range sequence.values {
			for _, unit := range elapsedUnits {
				if !unit.inSeqRange(value) {
					continue
				}
				elapsed := value * unit.ms
				if !withinWindow(birth, cutoff, elapsed) {
					continue
				}
				events = append(events, elapsedEvent(birth, elapsed,
					fmt.Sprintf("seq-%s-%d-%s", sequence.slug, value, unit.slug),
					fmt.Sprintf("%s %s (%s)", humanize.Comma(value), unit.name, sequence.name),
					fmt.Sprintf("%s %s since birth, a %s number", humanize.Comma(value), unit.slug, sequence.adjective),
					KindSequence, sequence.icon))
			}
		}
	}
	return events
}

type scienceMilestone struct {
	slug        string
	title       string
	description string
	icon        string
	elapsedMS   int64
}

var scienceMilestones = []scienceMilestone{
	{
		slug:        "light-seconds",
		title:       "Speed of Light Seconds",
		description: "299,792,458 seconds since birth: the speed of light in metres per second",
		icon:        "💡",
		elapsedMS:   299_792_458 * msPerSecond,
	},
	{
		slug:        "mole-femtoseconds",
		title:       "A Mole of Femtoseconds",
		description: "602,214,076 seconds since birth: Avogadro's number of femtoseconds",
		icon:        "🧪",
		elapsedMS:   602_214_076 * msPerSecond,
	},
	{
		slug:        "fine-structure-months",
		title:       "Fine-Structure Months",
		description: "137 months since birth: the inverse fine-structure constant",
		icon:        "⚛️",
		elapsedMS:   137 * msPerMonth,
	},
	{
		slug:        "earth-radius-days",
		title:       "Earth Radius Days",
		description: "6,371 days since birth: Earth's mean radius in kilometres",
		icon:        "🌍",
		elapsedMS:   6371 * msPerDay,
	},
}

func scienceEvents(birth, cutoff time.Time) []Event {
	var events []Event
	for _, milestone := range scienceMilestones {
		if !withinWindow(birth, cutoff, milestone.elapsedMS) {
			continue
		}
		events = append(events, elapsedEvent(birth, milestone.elapsedMS,
			"science-"+milestone.slug,
			milestone.title, milestone.description,
			KindScience, milestone.icon))
	}
	return events
}

type planet struct {
	name      string
	slug      string
	orbitDays float64
}

var planets = []planet{
	{name: "Mercury", slug: "mercury", orbitDays: 87.9691},
	{name: "Venus", slug: "venus", orbitDays: 224.701},
	{name: "Mars", slug: "mars", orbitDays: 686.980},
	{name: "Jupiter", slug: "jupiter", orbitDays: 4332.589},
	{name: "Saturn", slug: "saturn", orbitDays: 10759.22},
	{name: "Uranus", slug: "uranus", orbitDays: 30688.5},
	{name: "Neptune", slug: "neptune", orbitDays: 60182},
}

var planetMultiples = []int64{1, 2, 5, 10, 25, 50, 100, 250, 500}

// planetYearEvents emits whole orbital periods of the non-Earth planets.
func planetYearEvents(birth, cutoff time.Time) []Event {
	var events []Event
	for _, p := range planets {
		for _, multiple := range planetMultiples {
			elapsed := int64(math.Round(p.orbitDays * float64(multiple) * float64(msPerDay)))
			if !withinWindow(birth, cutoff, elapsed) {
				continue
			}
			label := fmt.Sprintf("%d %s Years", multiple, p.name)
			if multiple == 1 {
				label = fmt.Sprintf("1 %s Year", p.name)
			}
			events = append(events, elapsedEvent(birth, elapsed,
				fmt.Sprintf("planet-%s-%d", p.slug, multiple),
				label,
				fmt.Sprintf("%d full orbits of %s since birth", multiple, p.name),
				KindPlanet, ""))
		}
	}
	return events
}
