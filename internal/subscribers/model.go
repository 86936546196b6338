package subscribers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// BirthLayout is the storage format for member birth instants: minute
// precision, UTC, no zone suffix.
const BirthLayout = "2006-01-02T15:04"

var (
	// ErrInvalidEndpoint indicates an empty or malformed push endpoint.
	ErrInvalidEndpoint = errors.New("subscribers: invalid endpoint")
	// ErrInvalidBirthDatetime indicates a birth value outside the storage format.
	ErrInvalidBirthDatetime = errors.New("subscribers: invalid birth datetime")
)

// Subscription is one browser push subscription plus its notification
// preferences.
type Subscription struct {
	ID              string    `gorm:"column:id;primaryKey;size:64;not null"`
	Endpoint        string    `gorm:"column:endpoint;size:2048;not null;uniqueIndex:idx_subscriptions_endpoint"`
	P256DH          string    `gorm:"column:p256dh;size:512;not null"`
	Auth            string    `gorm:"column:auth;size:128;not null"`
	LeadMinutesJSON string    `gorm:"column:enabled_lead_minutes_json;type:text;not null"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Subscription) TableName() string {
	return "subscriptions"
}

// EnabledLeads decodes the lead-minute preference list.
func (s Subscription) EnabledLeads() ([]int, error) {
	if strings.TrimSpace(s.LeadMinutesJSON) == "" {
		return nil, nil
	}
	var leads []int
	if err := json.Unmarshal([]byte(s.LeadMinutesJSON), &leads); err != nil {
		return nil, fmt.Errorf("subscribers: decoding lead minutes: %w", err)
	}
	return leads, nil
}

// FamilyMember is one person a subscription wants milestones for. The member
// set is replaced wholesale on re-subscribe.
type FamilyMember struct {
	SubscriptionID string `gorm:"column:subscription_id;size:64;not null;index:idx_members_subscription"`
	Name           string `gorm:"column:name;size:190;not null"`
	BirthDatetime  string `gorm:"column:birth_datetime;size:16;not null;index:idx_members_birth"`
}

// TableName provides the explicit table binding for GORM.
func (FamilyMember) TableName() string {
	return "family_members"
}

// Birth parses the stored birth instant as UTC.
func (m FamilyMember) Birth() (time.Time, error) {
	return ParseBirthDatetime(m.BirthDatetime)
}

// SentNotification is the cross-tick delivery ledger keyed by
// (subscription, event, lead). It exists so re-running a tick for the same
// minute cannot double-notify.
type SentNotification struct {
	SubscriptionID string    `gorm:"column:subscription_id;primaryKey;size:64;not null"`
	EventID        string    `gorm:"column:event_id;primaryKey;size:190;not null"`
	LeadMinutes    int       `gorm:"column:lead_minutes;primaryKey;not null"`
	SentAt         time.Time `gorm:"column:sent_at;not null;index:idx_sent_at"`
}

// TableName provides the explicit table binding for GORM.
func (SentNotification) TableName() string {
	return "sent_notifications"
}

// SubscriptionID derives the stable identifier for a push endpoint.
func SubscriptionID(endpoint string) (string, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidEndpoint)
	}
	sum := sha256.Sum256([]byte(trimmed))
	return hex.EncodeToString(sum[:]), nil
}

// FormatBirthDatetime truncates an instant to the stored minute precision.
func FormatBirthDatetime(birth time.Time) string {
	return birth.UTC().Truncate(time.Minute).Format(BirthLayout)
}

// ParseBirthDatetime reads a stored birth value back as a UTC instant.
func ParseBirthDatetime(value string) (time.Time, error) {
	parsed, err := time.ParseInLocation(BirthLayout, strings.TrimSpace(value), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidBirthDatetime, value)
	}
	return parsed, nil
}

// TimeOfDay returns the HH:MM fragment of a stored birth value.
func TimeOfDay(birthDatetime string) string {
	if len(birthDatetime) < len(BirthLayout) {
		return ""
	}
	return birthDatetime[11:16]
}
