package milestones

import (
	"fmt"
	"strings"
	"time"
)

// Calendar-based milestones recur by calendar date, not by elapsed duration,
// so they carry the person's birth time-of-day and are excluded from the
// offset table.
var calendarGenerators = []generator{
	holidayEvents,
	birthdayEvents,
}

type holiday struct {
	name  string
	slug  string
	icon  string
	month time.Month
	day   int
}

var holidays = []holiday{
	{name: "Pi Day", slug: "pi-day", icon: "🥧", month: time.March, day: 14},
	{name: "Star Wars Day", slug: "star-wars-day", icon: "⚔️", month: time.May, day: 4},
	{name: "Towel Day", slug: "towel-day", icon: "🧖", month: time.May, day: 25},
	{name: "Tau Day", slug: "tau-day", icon: "🌀", month: time.June, day: 28},
	{name: "Mole Day", slug: "mole-day", icon: "🧪", month: time.October, day: 23},
}

// holidayEvents emits each shared geek holiday once per year, at the person's
// birth time-of-day so the scheduler's time-of-day pass can find them.
func holidayEvents(birth, cutoff time.Time) []Event {
	var events []Event
	for year := birth.Year(); year <= cutoff.Year(); year++ {
		for _, h := range holidays {
			date := time.Date(year, h.month, h.day,
				birth.Hour(), birth.Minute(), 0, 0, time.UTC)
			if !date.After(birth) || date.After(cutoff) {
				continue
			}
			events = append(events, Event{
				ID:            fmt.Sprintf("holiday-%s-%d", h.slug, year),
				Title:         h.name,
				Description:   fmt.Sprintf("%s %d", h.name, year),
				Date:          date,
				Kind:          KindHoliday,
				Icon:          h.icon,
				CalendarBased: true,
			})
		}
	}
	return events
}

// birthdayEvents emits every birthday anniversary, annotating ages that are
// prime, square, cubic, a power of two or a round hexadecimal value.
func birthdayEvents(birth, cutoff time.Time) []Event {
	var events []Event
	for age := 1; ; age++ {
		date := time.Date(birth.Year()+age, birth.Month(), birth.Day(),
			birth.Hour(), birth.Minute(), 0, 0, time.UTC)
		if date.After(cutoff) {
			break
		}
		title := fmt.Sprintf("%s Birthday", ordinal(age))
		special := specialAgeLabels(age)
		description := fmt.Sprintf("Turning %d", age)
		if len(special) > 0 {
			description = fmt.Sprintf("Turning %d: %s", age, strings.Join(special, ", "))
		}
		events = append(events, Event{
			ID:            fmt.Sprintf("birthday-%d", age),
			Title:         title,
			Description:   description,
			Date:          date,
			Kind:          KindBirthday,
			Icon:          KindBirthday.Icon(),
			CalendarBased: true,
		})
	}
	return events
}

func specialAgeLabels(age int) []string {
	var labels []string
	if isPrime(age) {
		labels = append(labels, "a prime age")
	}
	if isSquare(age) {
		labels = append(labels, "a perfect square")
	}
	if isCube(age) {
		labels = append(labels, "a perfect cube")
	}
	if isPowerOfTwo(age) {
		labels = append(labels, "a power of two")
	}
	if age >= 16 && age%16 == 0 {
		labels = append(labels, fmt.Sprintf("0x%X in hexadecimal", age))
	}
	return labels
}

func isPrime(n int) bool {
	if n < 2 {
		return false
	}
	for divisor := 2; divisor*divisor <= n; divisor++ {
		if n%divisor == 0 {
			return false
		}
	}
	return true
}

func isSquare(n int) bool {
	for root := 1; root*root <= n; root++ {
		if root*root == n {
			return true
		}
	}
	return false
}

func isCube(n int) bool {
	for root := 1; root*root*root <= n; root++ {
		if root*root*root == n {
			return true
		}
	}
	return false
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

func ordinal(n int) string {
	suffix := "th"
	switch {
	case n%100 >= 11 && n%100 <= 13:
	case n%10 == 1:
		suffix = "st"
	case n%10 == 2:
		suffix = "nd"
	case n%10 == 3:
		suffix = "rd"
	}
	return fmt.Sprintf("%d%s", n, suffix)
}
