package subscribers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errNoMembers       = errors.New("at least one family member is required")
	noOpLogger         = zap.NewNop()
)

// ServiceError carries a stable operation.reason code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew     = "subscribers.service.new"
	opUpsert         = "subscribers.upsert"
	opDelete         = "subscribers.delete"
	opMembersByBirth = "subscribers.members_by_birth"
	opMembersByTime  = "subscribers.members_by_time_of_day"
	opLedgerMark     = "subscribers.ledger.mark"
	opLedgerCheck    = "subscribers.ledger.check"
	opLedgerPrune    = "subscribers.ledger.prune"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// ServiceConfig describes the dependencies for the subscriber store.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service owns subscriptions, family members and the sent-notification ledger.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService validates dependencies and constructs the store.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, clock: clock, logger: logger}, nil
}

// MemberInput is one family member supplied on subscribe.
type MemberInput struct {
	Name  string
	Birth time.Time
}

// UpsertRequest replaces a subscription and its full member set.
type UpsertRequest struct {
	Endpoint    string
	P256DH      string
	Auth        string
	LeadMinutes []int
	Members     []MemberInput
}

// Upsert creates or replaces the subscription for the request endpoint. The
// member set is replaced atomically: delete-then-insert inside one
// transaction.
func (s *Service) Upsert(ctx context.Context, request UpsertRequest) (Subscription, error) {
	id, err := SubscriptionID(request.Endpoint)
	if err != nil {
		return Subscription{}, newServiceError(opUpsert, "invalid_endpoint", err)
	}
	if len(request.Members) == 0 {
		return Subscription{}, newServiceError(opUpsert, "missing_members", errNoMembers)
	}

	leadsJSON, err := json.Marshal(request.LeadMinutes)
	if err != nil {
		return Subscription{}, newServiceError(opUpsert, "encode_leads_failed", err)
	}

	subscription := Subscription{
		ID:              id,
		Endpoint:        request.Endpoint,
		P256DH:          request.P256DH,
		Auth:            request.Auth,
		LeadMinutesJSON: string(leadsJSON),
		UpdatedAt:       s.clock().UTC(),
	}

	members := make([]FamilyMember, 0, len(request.Members))
	for _, member := range request.Members {
		if member.Birth.IsZero() {
			return Subscription{}, newServiceError(opUpsert, "invalid_member_birth", ErrInvalidBirthDatetime)
		}
		members = append(members, FamilyMember{
			SubscriptionID: id,
			Name:           member.Name,
			BirthDatetime:  FormatBirthDatetime(member.Birth),
		})
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).Create(&subscription).Error; err != nil {
			return newServiceError(opUpsert, "subscription_save_failed", err)
		}
		if err := tx.Where("subscription_id = ?", id).Delete(&FamilyMember{}).Error; err != nil {
			return newServiceError(opUpsert, "member_delete_failed", err)
		}
		if err := tx.Create(&members).Error; err != nil {
			return newServiceError(opUpsert, "member_insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		s.logError(opUpsert, "transaction_failed", txErr, zap.String("subscription_id", id))
		return Subscription{}, txErr
	}

	return subscription, nil
}

// DeleteByEndpoint removes the subscription registered for the endpoint along
// with its members and ledger rows.
func (s *Service) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	id, err := SubscriptionID(endpoint)
	if err != nil {
		return newServiceError(opDelete, "invalid_endpoint", err)
	}
	return s.Delete(ctx, id)
}

// Delete removes a subscription by id. The scheduler calls this when a push
// service reports the endpoint gone (404/410).
func (s *Service) Delete(ctx context.Context, subscriptionID string) error {
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("subscription_id = ?", subscriptionID).Delete(&FamilyMember{}).Error; err != nil {
			return newServiceError(opDelete, "member_delete_failed", err)
		}
		if err := tx.Where("subscription_id = ?", subscriptionID).Delete(&SentNotification{}).Error; err != nil {
			return newServiceError(opDelete, "ledger_delete_failed", err)
		}
		if err := tx.Where("id = ?", subscriptionID).Delete(&Subscription{}).Error; err != nil {
			return newServiceError(opDelete, "subscription_delete_failed", err)
		}
		return nil
	})
	if txErr != nil {
		s.logError(opDelete, "transaction_failed", txErr, zap.String("subscription_id", subscriptionID))
	}
	return txErr
}

// Match is one family member joined with its owning subscription.
type Match struct {
	SubscriptionID  string `gorm:"column:subscription_id"`
	Endpoint        string `gorm:"column:endpoint"`
	P256DH          string `gorm:"column:p256dh"`
	Auth            string `gorm:"column:auth"`
	LeadMinutesJSON string `gorm:"column:enabled_lead_minutes_json"`
	Name            string `gorm:"column:name"`
	BirthDatetime   string `gorm:"column:birth_datetime"`
}

// EnabledLeads decodes the subscription's lead preferences.
func (m Match) EnabledLeads() ([]int, error) {
	return Subscription{LeadMinutesJSON: m.LeadMinutesJSON}.EnabledLeads()
}

// Birth parses the member's stored birth instant as UTC.
func (m Match) Birth() (time.Time, error) {
	return ParseBirthDatetime(m.BirthDatetime)
}

const matchColumns = "family_members.subscription_id, family_members.name, family_members.birth_datetime, " +
	"subscriptions.endpoint, subscriptions.p256dh, subscriptions.auth, subscriptions.enabled_lead_minutes_json"

// MembersByBirthInstants returns every member whose stored birth instant is in
// keys, joined with its subscription. Callers batch keys; one call is one
// store round trip.
func (s *Service) MembersByBirthInstants(ctx context.Context, keys []string) ([]Match, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	var matches []Match
	err := s.db.WithContext(ctx).
		Table("family_members").
		Select(matchColumns).
		Joins("JOIN subscriptions ON subscriptions.id = family_members.subscription_id").
		Where("family_members.birth_datetime IN ?", keys).
		Scan(&matches).Error
	if err != nil {
		s.logError(opMembersByBirth, "query_failed", err, zap.Int("keys", len(keys)))
		return nil, newServiceError(opMembersByBirth, "query_failed", err)
	}
	return matches, nil
}

// MembersByBirthTimeOfDay returns members whose birth time-of-day (HH:MM)
// matches any of the supplied keys. Used by the calendar-based pass.
func (s *Service) MembersByBirthTimeOfDay(ctx context.Context, timesOfDay []string) ([]Match, error) {
	if len(timesOfDay) == 0 {
		return nil, nil
	}
	var matches []Match
	err := s.db.WithContext(ctx).
		Table("family_members").
		Select(matchColumns).
		Joins("JOIN subscriptions ON subscriptions.id = family_members.subscription_id").
		Where("substr(family_members.birth_datetime, 12, 5) IN ?", timesOfDay).
		Scan(&matches).Error
	if err != nil {
		s.logError(opMembersByTime, "query_failed", err, zap.Int("keys", len(timesOfDay)))
		return nil, newServiceError(opMembersByTime, "query_failed", err)
	}
	return matches, nil
}

// AlreadySent reports whether the ledger holds a (subscription, event, lead)
// entry.
func (s *Service) AlreadySent(ctx context.Context, subscriptionID, eventID string, leadMinutes int) (bool, error) {
	var record SentNotification
	err := s.db.WithContext(ctx).
		Where("subscription_id = ? AND event_id = ? AND lead_minutes = ?", subscriptionID, eventID, leadMinutes).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		s.logError(opLedgerCheck, "query_failed", err, zap.String("subscription_id", subscriptionID))
		return false, newServiceError(opLedgerCheck, "query_failed", err)
	}
	return true, nil
}

// MarkSent records a delivery in the ledger. Replaying the same key is not an
// error.
func (s *Service) MarkSent(ctx context.Context, subscriptionID, eventID string, leadMinutes int) error {
	record := SentNotification{
		SubscriptionID: subscriptionID,
		EventID:        eventID,
		LeadMinutes:    leadMinutes,
		SentAt:         s.clock().UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error
	if err != nil {
		s.logError(opLedgerMark, "insert_failed", err, zap.String("subscription_id", subscriptionID))
		return newServiceError(opLedgerMark, "insert_failed", err)
	}
	return nil
}

// PruneLedger drops ledger rows older than the retention window.
func (s *Service) PruneLedger(ctx context.Context, retention time.Duration) error {
	cutoff := s.clock().UTC().Add(-retention)
	err := s.db.WithContext(ctx).Where("sent_at < ?", cutoff).Delete(&SentNotification{}).Error
	if err != nil {
		s.logError(opLedgerPrune, "delete_failed", err)
		return newServiceError(opLedgerPrune, "delete_failed", err)
	}
	return nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("subscriber store error", attrs...)
}
