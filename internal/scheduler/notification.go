package scheduler

import (
	"encoding/json"
	"fmt"
)

// Payload is the JSON document handed to the service worker on the other end
// of the push subscription.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon,omitempty"`
	Tag   string `json:"tag,omitempty"`
}

// notification is one pending delivery within a tick.
type notification struct {
	subscriptionID string
	endpoint       string
	p256dh         string
	auth           string
	eventID        string
	leadMinutes    int
	payload        Payload
}

func buildPayload(memberName, label, icon string, leadMinutes int) Payload {
	return Payload{
		Title: fmt.Sprintf("Nerdiversary %s", distanceWording(leadMinutes)),
		Body:  fmt.Sprintf("%s: %s", memberName, label),
		Icon:  icon,
		Tag:   label,
	}
}

// distanceWording phrases how far away the milestone is, in the largest unit
// that divides the lead evenly.
func distanceWording(leadMinutes int) string {
	switch {
	case leadMinutes <= 0:
		return "now!"
	case leadMinutes%1440 == 0:
		days := leadMinutes / 1440
		if days == 1 {
			return "in 1 day"
		}
		return fmt.Sprintf("in %d days", days)
	case leadMinutes%60 == 0:
		hours := leadMinutes / 60
		if hours == 1 {
			return "in 1 hour"
		}
		return fmt.Sprintf("in %d hours", hours)
	case leadMinutes == 1:
		return "in 1 minute"
	default:
		return fmt.Sprintf("in %d minutes", leadMinutes)
	}
}

func (p Payload) encode() ([]byte, error) {
	return json.Marshal(p)
}
