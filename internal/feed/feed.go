package feed

import (
	"bytes"
	"fmt"
	"time"

	"github.com/emersion/go-ical"

	"github.com/ptarjan/nerdiversary-sub000/internal/milestones"
)

const (
	icalProdID  = "-//nerdiversary//milestone feed//EN"
	icalDomain  = "nerdiversary.app"
	icalName    = "Nerdiversaries"
	icalRefresh = 24 * time.Hour
)

// Options tunes a calendar export.
type Options struct {
	// HorizonYears bounds how far into the future events are generated.
	// Zero means the engine default.
	HorizonYears int
	// IncludePast keeps events before Now in the feed. Calendar apps can
	// scroll backwards, so exports default to including them.
	IncludePast bool
	// Now anchors the past/future split; zero means the current time.
	Now time.Time
}

// Export renders the milestone timeline for one birth instant as an
// iCalendar document.
func Export(birth time.Time, opts Options) ([]byte, error) {
	events, err := milestones.Calculate(birth, milestones.Options{
		HorizonYears: opts.HorizonYears,
		IncludePast:  opts.IncludePast,
		Now:          opts.Now,
	})
	if err != nil {
		return nil, err
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, icalProdID)
	cal.Props.SetText("X-WR-CALNAME", icalName)
	cal.Props.SetText(ical.PropCalendarScale, "GREGORIAN")

	refreshProp := ical.NewProp("REFRESH-INTERVAL")
	refreshProp.SetDuration(icalRefresh)
	cal.Props.Set(refreshProp)

	for _, event := range events {
		cal.Children = append(cal.Children, buildVEvent(event, now).Component)
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("feed: encoding calendar: %w", err)
	}
	return buf.Bytes(), nil
}

func buildVEvent(event milestones.Event, stamp time.Time) *ical.Event {
	vevent := ical.NewEvent()
	vevent.Props.SetText(ical.PropUID, fmt.Sprintf("%s@%s", event.ID, icalDomain))
	vevent.Props.SetText(ical.PropSummary, fmt.Sprintf("%s %s", event.Icon, event.Title))
	if event.Description != "" {
		vevent.Props.SetText(ical.PropDescription, event.Description)
	}
	vevent.Props.SetText(ical.PropCategories, string(event.Kind.Category()))

	stampProp := ical.NewProp(ical.PropDateTimeStamp)
	stampProp.SetDateTime(stamp.UTC())
	vevent.Props.Set(stampProp)

	startProp := ical.NewProp(ical.PropDateTimeStart)
	startProp.SetDateTime(event.Date.UTC())
	vevent.Props.Set(startProp)

	return vevent
}
