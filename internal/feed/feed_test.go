package feed

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-ical"
)

func TestExportProducesParsableCalendar(t *testing.T) {
	birth := time.Date(1990, time.June, 15, 8, 30, 0, 0, time.UTC)
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)

	data, err := Export(birth, Options{HorizonYears: 50, IncludePast: true, Now: now})
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	cal, err := ical.NewDecoder(bytes.NewReader(data)).Decode()
	if err != nil {
		t.Fatalf("exported feed does not parse: %v", err)
	}

	if got := cal.Props.Get(ical.PropVersion); got == nil || got.Value != "2.0" {
		t.Fatalf("missing or wrong VERSION property: %v", got)
	}

	events := cal.Events()
	if len(events) == 0 {
		t.Fatal("expected at least one VEVENT in the feed")
	}
	for _, event := range events {
		uid := event.Props.Get(ical.PropUID)
		if uid == nil || !strings.HasSuffix(uid.Value, "@nerdiversary.app") {
			t.Fatalf("event missing domain-scoped UID: %v", uid)
		}
		if event.Props.Get(ical.PropSummary) == nil {
			t.Fatalf("event %v missing summary", uid)
		}
		if event.Props.Get(ical.PropDateTimeStart) == nil {
			t.Fatalf("event %v missing DTSTART", uid)
		}
	}
}

func TestExportRejectsZeroBirth(t *testing.T) {
	if _, err := Export(time.Time{}, Options{}); err == nil {
		t.Fatal("expected an error for a zero birth instant")
	}
}

func TestExportFutureOnlyDropsPastEvents(t *testing.T) {
	birth := time.Date(1990, time.June, 15, 8, 30, 0, 0, time.UTC)
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)

	data, err := Export(birth, Options{HorizonYears: 50, Now: now})
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	cal, err := ical.NewDecoder(bytes.NewReader(data)).Decode()
	if err != nil {
		t.Fatalf("exported feed does not parse: %v", err)
	}
	for _, event := range cal.Events() {
		start := event.Props.Get(ical.PropDateTimeStart)
		if start == nil {
			t.Fatal("event missing DTSTART")
		}
		when, err := start.DateTime(time.UTC)
		if err != nil {
			t.Fatalf("DTSTART does not parse: %v", err)
		}
		if when.Before(now) {
			t.Fatalf("future-only feed contains past event at %v", when)
		}
	}
}
