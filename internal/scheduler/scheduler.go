package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ptarjan/nerdiversary-sub000/internal/milestones"
	"github.com/ptarjan/nerdiversary-sub000/internal/subscribers"
	"github.com/ptarjan/nerdiversary-sub000/internal/webpush"
)

var (
	errMissingStore   = errors.New("scheduler: subscriber store is required")
	errMissingPusher  = errors.New("scheduler: push client is required")
	errMissingOffsets = errors.New("scheduler: offset table is required")
	noOpLogger        = zap.NewNop()
)

// defaultLeadMinutes notify at the milestone, an hour before and a day before.
var defaultLeadMinutes = []int{0, 60, 1440}

const (
	defaultBatchSize       = 500
	defaultConcurrency     = 8
	defaultLedgerRetention = 7 * 24 * time.Hour
)

// Store is the subscriber persistence the scheduler queries and prunes.
// *subscribers.Service satisfies it.
type Store interface {
	MembersByBirthInstants(ctx context.Context, keys []string) ([]subscribers.Match, error)
	MembersByBirthTimeOfDay(ctx context.Context, timesOfDay []string) ([]subscribers.Match, error)
	Delete(ctx context.Context, subscriptionID string) error
	AlreadySent(ctx context.Context, subscriptionID, eventID string, leadMinutes int) (bool, error)
	MarkSent(ctx context.Context, subscriptionID, eventID string, leadMinutes int) error
	PruneLedger(ctx context.Context, retention time.Duration) error
}

// Pusher performs one Web Push delivery. *webpush.Client satisfies it.
type Pusher interface {
	Send(ctx context.Context, subscription webpush.Subscription, payload []byte) (webpush.SendResult, error)
}

// Config wires the scheduler's collaborators and tuning knobs.
type Config struct {
	// Offsets is the read-only offset table built at startup; the scheduler
	// never rebuilds it.
	Offsets []milestones.Offset
	Store   Store
	Pusher  Pusher
	// LeadMinutes is the fixed lead-time set subscriptions choose from.
	LeadMinutes []int
	// BatchSize bounds the keys per store query (parameter-count limit).
	BatchSize int
	// HorizonYears is passed to the engine for the calendar-based pass.
	HorizonYears int
	// Concurrency bounds parallel push deliveries within one tick.
	Concurrency     int
	LedgerRetention time.Duration
	Clock           func() time.Time
	Logger          *zap.Logger
}

// Scheduler runs the offset-indexed notification pass once per tick. Ticks
// must not overlap; a trigger that arrives while one is running is skipped.
type Scheduler struct {
	offsets         []milestones.Offset
	store           Store
	pusher          Pusher
	leadMinutes     []int
	batchSize       int
	horizonYears    int
	concurrency     int
	ledgerRetention time.Duration
	clock           func() time.Time
	logger          *zap.Logger

	tickMu sync.Mutex
}

// New validates the configuration and constructs a Scheduler.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.Pusher == nil {
		return nil, errMissingPusher
	}
	if len(cfg.Offsets) == 0 {
		return nil, errMissingOffsets
	}

	leadMinutes := cfg.LeadMinutes
	if len(leadMinutes) == 0 {
		leadMinutes = defaultLeadMinutes
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	horizonYears := cfg.HorizonYears
	if horizonYears <= 0 {
		horizonYears = milestones.DefaultHorizonYears
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	retention := cfg.LedgerRetention
	if retention <= 0 {
		retention = defaultLedgerRetention
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Scheduler{
		offsets:         cfg.Offsets,
		store:           cfg.Store,
		pusher:          cfg.Pusher,
		leadMinutes:     leadMinutes,
		batchSize:       batchSize,
		horizonYears:    horizonYears,
		concurrency:     concurrency,
		ledgerRetention: retention,
		clock:           clock,
		logger:          logger,
	}, nil
}

// RunTick executes one scheduling pass anchored at now. Both passes collect
// their notifications before any delivery starts, so a store failure aborts
// the tick without a partial send.
func (s *Scheduler) RunTick(ctx context.Context, now time.Time) error {
	if !s.tickMu.TryLock() {
		s.logger.Warn("tick skipped, previous tick still running")
		return nil
	}
	defer s.tickMu.Unlock()

	now = now.UTC().Truncate(time.Minute)
	tickID := uuid.NewString()
	logger := s.logger.With(zap.String("tick_id", tickID), zap.Time("tick", now))
	started := s.clock()

	pending, err := s.collectOffsetNotifications(ctx, now, logger)
	if err != nil {
		logger.Error("tick aborted during offset pass", zap.Error(err))
		return err
	}
	calendarPending, err := s.collectCalendarNotifications(ctx, now, logger)
	if err != nil {
		logger.Error("tick aborted during calendar pass", zap.Error(err))
		return err
	}
	pending = append(pending, calendarPending...)

	delivered, stale, skipped := s.deliver(ctx, pending, logger)

	if err := s.store.PruneLedger(ctx, s.ledgerRetention); err != nil {
		logger.Warn("ledger prune failed", zap.Error(err))
	}

	logger.Info("tick complete",
		zap.Int("pending", len(pending)),
		zap.Int("delivered", delivered),
		zap.Int("stale", stale),
		zap.Int("skipped", skipped),
		zap.Duration("elapsed", s.clock().Sub(started)))
	return nil
}

// collectOffsetNotifications is the offset-indexed pass: target minutes from
// the offset table, batched store lookups, fan-out filtered by each
// subscription's enabled leads.
func (s *Scheduler) collectOffsetNotifications(ctx context.Context, now time.Time, logger *zap.Logger) ([]notification, error) {
	targets := buildTargetMap(s.offsets, s.leadMinutes, now)
	keys := sortedKeys(targets)

	var pending []notification
	for _, batch := range batchKeys(keys, s.batchSize) {
		matches, err := s.store.MembersByBirthInstants(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("scheduler: birth instant query: %w", err)
		}
		for _, match := range matches {
			enabled, err := enabledLeadSet(match)
			if err != nil {
				logger.Warn("skipping subscription with bad lead preferences",
					zap.String("subscription_id", match.SubscriptionID), zap.Error(err))
				continue
			}
			for _, pair := range targets[match.BirthDatetime] {
				if _, ok := enabled[pair.leadMinutes]; !ok {
					continue
				}
				pending = append(pending, notification{
					subscriptionID: match.SubscriptionID,
					endpoint:       match.Endpoint,
					p256dh:         match.P256DH,
					auth:           match.Auth,
					eventID:        pair.offset.EventID,
					leadMinutes:    pair.leadMinutes,
					payload:        buildPayload(match.Name, pair.offset.Label, pair.offset.Icon, pair.leadMinutes),
				})
			}
		}
	}
	return pending, nil
}

// collectCalendarNotifications resolves calendar-recurring milestones, which
// the offset table cannot represent: match subscribers by birth time-of-day,
// then re-run the engine on each match's actual birth date.
func (s *Scheduler) collectCalendarNotifications(ctx context.Context, now time.Time, logger *zap.Logger) ([]notification, error) {
	timeOfDaySet := make(map[string]struct{}, len(s.leadMinutes))
	for _, lead := range s.leadMinutes {
		candidate := now.Add(time.Duration(lead) * time.Minute)
		timeOfDaySet[candidate.Format("15:04")] = struct{}{}
	}
	timesOfDay := make([]string, 0, len(timeOfDaySet))
	for key := range timeOfDaySet {
		timesOfDay = append(timesOfDay, key)
	}

	matches, err := s.store.MembersByBirthTimeOfDay(ctx, timesOfDay)
	if err != nil {
		return nil, fmt.Errorf("scheduler: time-of-day query: %w", err)
	}

	var pending []notification
	for _, match := range matches {
		birth, err := match.Birth()
		if err != nil {
			logger.Warn("skipping member with bad birth datetime",
				zap.String("subscription_id", match.SubscriptionID), zap.Error(err))
			continue
		}
		enabled, err := enabledLeadSet(match)
		if err != nil {
			logger.Warn("skipping subscription with bad lead preferences",
				zap.String("subscription_id", match.SubscriptionID), zap.Error(err))
			continue
		}

		events, err := milestones.Calculate(birth, milestones.Options{
			HorizonYears: s.horizonYears,
			IncludePast:  true,
			Now:          now,
		})
		if err != nil {
			logger.Warn("engine rejected stored birth instant",
				zap.String("subscription_id", match.SubscriptionID), zap.Error(err))
			continue
		}

		memberTimeOfDay := subscribers.TimeOfDay(match.BirthDatetime)
		for _, lead := range s.leadMinutes {
			if _, ok := enabled[lead]; !ok {
				continue
			}
			candidate := now.Add(time.Duration(lead) * time.Minute)
			if candidate.Format("15:04") != memberTimeOfDay {
				continue
			}
			for _, event := range events {
				if !event.CalendarBased {
					continue
				}
				if !event.Date.Truncate(time.Minute).Equal(candidate) {
					continue
				}
				pending = append(pending, notification{
					subscriptionID: match.SubscriptionID,
					endpoint:       match.Endpoint,
					p256dh:         match.P256DH,
					auth:           match.Auth,
					eventID:        event.ID,
					leadMinutes:    lead,
					payload:        buildPayload(match.Name, event.Title, event.Icon, lead),
				})
			}
		}
	}
	return pending, nil
}

// deliver pushes every pending notification with bounded concurrency. The
// ledger is consulted before and written after each successful send.
func (s *Scheduler) deliver(ctx context.Context, pending []notification, logger *zap.Logger) (delivered, stale, skipped int) {
	var (
		wg        sync.WaitGroup
		counterMu sync.Mutex
	)
	semaphore := make(chan struct{}, s.concurrency)

	for _, item := range pending {
		wg.Add(1)
		semaphore <- struct{}{}
		go func(item notification) {
			defer wg.Done()
			defer func() { <-semaphore }()

			outcome := s.deliverOne(ctx, item, logger)
			counterMu.Lock()
			switch outcome {
			case outcomeDelivered:
				delivered++
			case outcomeStale:
				stale++
			case outcomeSkipped:
				skipped++
			}
			counterMu.Unlock()
		}(item)
	}
	wg.Wait()
	return delivered, stale, skipped
}

type deliveryOutcome int

const (
	outcomeFailed deliveryOutcome = iota
	outcomeDelivered
	outcomeStale
	outcomeSkipped
)

func (s *Scheduler) deliverOne(ctx context.Context, item notification, logger *zap.Logger) deliveryOutcome {
	alreadySent, err := s.store.AlreadySent(ctx, item.subscriptionID, item.eventID, item.leadMinutes)
	if err != nil {
		logger.Warn("ledger check failed, delivering anyway",
			zap.String("subscription_id", item.subscriptionID), zap.Error(err))
	}
	if alreadySent {
		return outcomeSkipped
	}

	body, err := item.payload.encode()
	if err != nil {
		logger.Error("payload encoding failed",
			zap.String("subscription_id", item.subscriptionID), zap.Error(err))
		return outcomeFailed
	}

	result, err := s.pusher.Send(ctx, webpush.Subscription{
		Endpoint: item.endpoint,
		P256DH:   item.p256dh,
		Auth:     item.auth,
	}, body)
	if err != nil {
		logger.Warn("push delivery failed",
			zap.String("subscription_id", item.subscriptionID),
			zap.String("event_id", item.eventID),
			zap.Error(err))
		return outcomeFailed
	}

	switch {
	case result.Stale():
		logger.Info("purging stale subscription",
			zap.String("subscription_id", item.subscriptionID),
			zap.Int("status", result.StatusCode))
		if err := s.store.Delete(ctx, item.subscriptionID); err != nil {
			logger.Error("stale subscription purge failed",
				zap.String("subscription_id", item.subscriptionID), zap.Error(err))
		}
		return outcomeStale
	case result.Delivered():
		if err := s.store.MarkSent(ctx, item.subscriptionID, item.eventID, item.leadMinutes); err != nil {
			logger.Warn("ledger write failed",
				zap.String("subscription_id", item.subscriptionID), zap.Error(err))
		}
		return outcomeDelivered
	default:
		// not retried within this tick; the next matching tick may try again
		logger.Warn("push service rejected delivery",
			zap.String("subscription_id", item.subscriptionID),
			zap.String("event_id", item.eventID),
			zap.Int("status", result.StatusCode))
		return outcomeFailed
	}
}

func enabledLeadSet(match subscribers.Match) (map[int]struct{}, error) {
	leads, err := match.EnabledLeads()
	if err != nil {
		return nil, err
	}
	set := make(map[int]struct{}, len(leads))
	for _, lead := range leads {
		set[lead] = struct{}{}
	}
	return set, nil
}
