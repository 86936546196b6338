package milestones

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidBirth indicates the supplied birth instant is not a usable time point.
	ErrInvalidBirth = errors.New("milestones: invalid birth instant")
	// ErrInvalidHorizon indicates a non-positive horizon was requested.
	ErrInvalidHorizon = errors.New("milestones: invalid horizon")
)

// Kind is the closed set of milestone families. Every switch over Kind is
// expected to be exhaustive; adding a variant means touching each of them.
type Kind int

const (
	KindRoundCount Kind = iota
	KindBinaryCount
	KindHexCount
	KindMathConstant
	KindSequence
	KindScience
	KindPlanet
	KindHoliday
	KindBirthday
)

// Category is the wire/storage name of a Kind.
type Category string

const (
	CategoryRound    Category = "round"
	CategoryBinary   Category = "binary"
	CategoryHex      Category = "hex"
	CategoryMath     Category = "math"
	CategorySequence Category = "sequence"
	CategoryScience  Category = "science"
	CategoryPlanet   Category = "planet"
	CategoryHoliday  Category = "holiday"
	CategoryBirthday Category = "birthday"
)

// Category maps the kind to its stable category name.
func (k Kind) Category() Category {
	switch k {
	case KindRoundCount:
		return CategoryRound
	case KindBinaryCount:
		return CategoryBinary
	case KindHexCount:
		return CategoryHex
	case KindMathConstant:
		return CategoryMath
	case KindSequence:
		return CategorySequence
	case KindScience:
		return CategoryScience
	case KindPlanet:
		return CategoryPlanet
	case KindHoliday:
		return CategoryHoliday
	case KindBirthday:
		return CategoryBirthday
	}
	panic(fmt.Sprintf("milestones: unknown kind %d", int(k)))
}

// Icon returns the default icon for the kind. Individual generators may
// override it on a per-event basis.
func (k Kind) Icon() string {
	switch k {
	case KindRoundCount:
		return "🔢"
	case KindBinaryCount:
		return "💾"
	case KindHexCount:
		return "🔡"
	case KindMathConstant:
		return "🥧"
	case KindSequence:
		return "🌀"
	case KindScience:
		return "🔬"
	case KindPlanet:
		return "🪐"
	case KindHoliday:
		return "🎉"
	case KindBirthday:
		return "🎂"
	}
	panic(fmt.Sprintf("milestones: unknown kind %d", int(k)))
}

// rank orders kinds for the tie-break between events sharing an instant.
func (k Kind) rank() int {
	return int(k)
}

// Event is one computed milestone for one person.
type Event struct {
	ID            string
	Title         string
	Description   string
	Date          time.Time
	Kind          Kind
	Icon          string
	CalendarBased bool
}

// Category exposes the event's category name.
func (e Event) Category() Category {
	return e.Kind.Category()
}
