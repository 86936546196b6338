package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ptarjan/nerdiversary-sub000/internal/milestones"
	"github.com/ptarjan/nerdiversary-sub000/internal/subscribers"
	"github.com/ptarjan/nerdiversary-sub000/internal/webpush"
)

type fakeStore struct {
	mu sync.Mutex

	membersByBirth map[string][]subscribers.Match
	membersByTime  map[string][]subscribers.Match

	birthQueries [][]string
	timeQueries  [][]string
	deleted      []string
	ledger       map[string]bool

	birthQueryErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		membersByBirth: map[string][]subscribers.Match{},
		membersByTime:  map[string][]subscribers.Match{},
		ledger:         map[string]bool{},
	}
}

func ledgerKey(subscriptionID, eventID string, leadMinutes int) string {
	return fmt.Sprintf("%s|%s|%d", subscriptionID, eventID, leadMinutes)
}

func (f *fakeStore) MembersByBirthInstants(_ context.Context, keys []string) ([]subscribers.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.birthQueryErr != nil {
		return nil, f.birthQueryErr
	}
	f.birthQueries = append(f.birthQueries, keys)
	var matches []subscribers.Match
	for _, key := range keys {
		matches = append(matches, f.membersByBirth[key]...)
	}
	return matches, nil
}

func (f *fakeStore) MembersByBirthTimeOfDay(_ context.Context, timesOfDay []string) ([]subscribers.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeQueries = append(f.timeQueries, timesOfDay)
	var matches []subscribers.Match
	for _, key := range timesOfDay {
		matches = append(matches, f.membersByTime[key]...)
	}
	return matches, nil
}

func (f *fakeStore) Delete(_ context.Context, subscriptionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, subscriptionID)
	return nil
}

func (f *fakeStore) AlreadySent(_ context.Context, subscriptionID, eventID string, leadMinutes int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ledger[ledgerKey(subscriptionID, eventID, leadMinutes)], nil
}

func (f *fakeStore) MarkSent(_ context.Context, subscriptionID, eventID string, leadMinutes int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ledger[ledgerKey(subscriptionID, eventID, leadMinutes)] = true
	return nil
}

func (f *fakeStore) PruneLedger(context.Context, time.Duration) error {
	return nil
}

type sentPush struct {
	subscription webpush.Subscription
	payload      Payload
}

type fakePusher struct {
	mu         sync.Mutex
	sent       []sentPush
	statusFunc func(subscription webpush.Subscription) int
}

func (f *fakePusher) Send(_ context.Context, subscription webpush.Subscription, payload []byte) (webpush.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var decoded Payload
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return webpush.SendResult{}, err
	}
	f.sent = append(f.sent, sentPush{subscription: subscription, payload: decoded})
	status := 201
	if f.statusFunc != nil {
		status = f.statusFunc(subscription)
	}
	return webpush.SendResult{StatusCode: status}, nil
}

func matchFor(subscriptionID, name, birthKey, leadsJSON string) subscribers.Match {
	return subscribers.Match{
		SubscriptionID:  subscriptionID,
		Endpoint:        "https://push.example.com/" + subscriptionID,
		P256DH:          "p256dh",
		Auth:            "auth",
		LeadMinutesJSON: leadsJSON,
		Name:            name,
		BirthDatetime:   birthKey,
	}
}

var tickNow = time.Date(2030, time.January, 1, 0, 0, 0, 0, time.UTC)

func billionSecondsOffset() milestones.Offset {
	return milestones.Offset{
		ElapsedMS: 1_000_000_000_000,
		EventID:   "round-1000000000-seconds",
		Label:     "1 Billion Seconds",
		Icon:      "🔢",
	}
}

func targetKeyFor(offset milestones.Offset, leadMinutes int, now time.Time) string {
	return now.
		Add(-time.Duration(offset.ElapsedMS) * time.Millisecond).
		Add(time.Duration(leadMinutes) * time.Minute).
		Truncate(time.Minute).
		Format(subscribers.BirthLayout)
}

func TestRunTickFansOutAndFiltersLeads(t *testing.T) {
	offset := billionSecondsOffset()
	store := newFakeStore()
	key := targetKeyFor(offset, 60, tickNow)
	store.membersByBirth[key] = []subscribers.Match{
		matchFor("sub-hourly", "Ada", key, "[60]"),
		matchFor("sub-daily", "Grace", key, "[1440]"),
	}
	pusher := &fakePusher{}

	sched, err := New(Config{
		Offsets:     []milestones.Offset{offset},
		Store:       store,
		Pusher:      pusher,
		LeadMinutes: []int{0, 60},
	})
	if err != nil {
		t.Fatalf("building scheduler: %v", err)
	}

	if err := sched.RunTick(context.Background(), tickNow); err != nil {
		t.Fatalf("tick failed: %v", err)
	}

	if len(pusher.sent) != 1 {
		t.Fatalf("expected one delivery, got %d", len(pusher.sent))
	}
	sent := pusher.sent[0]
	if sent.subscription.Endpoint != "https://push.example.com/sub-hourly" {
		t.Fatalf("delivered to wrong subscription: %q", sent.subscription.Endpoint)
	}
	if sent.payload.Title != "Nerdiversary in 1 hour" {
		t.Fatalf("unexpected title %q", sent.payload.Title)
	}
	if sent.payload.Body != "Ada: 1 Billion Seconds" {
		t.Fatalf("unexpected body %q", sent.payload.Body)
	}
}

func TestRunTickBatchesStoreQueries(t *testing.T) {
	// 25 distinct offsets on distinct minutes, one lead: 25 keys at batch
	// size 10 must produce exactly 3 round trips.
	var offsets []milestones.Offset
	for i := 1; i <= 25; i++ {
		offsets = append(offsets, milestones.Offset{
			ElapsedMS: int64(i) * 60_000 * 1000,
			EventID:   fmt.Sprintf("offset-%d", i),
			Label:     fmt.Sprintf("Offset %d", i),
		})
	}
	store := newFakeStore()
	pusher := &fakePusher{}

	sched, err := New(Config{
		Offsets:     offsets,
		Store:       store,
		Pusher:      pusher,
		LeadMinutes: []int{0},
		BatchSize:   10,
	})
	if err != nil {
		t.Fatalf("building scheduler: %v", err)
	}
	if err := sched.RunTick(context.Background(), tickNow); err != nil {
		t.Fatalf("tick failed: %v", err)
	}

	if len(store.birthQueries) != 3 {
		t.Fatalf("expected ⌈25/10⌉ = 3 store round trips, got %d", len(store.birthQueries))
	}
	for _, batch := range store.birthQueries {
		if len(batch) > 10 {
			t.Fatalf("batch exceeded the parameter bound: %d keys", len(batch))
		}
	}
}

func TestRunTickPurgesStaleSubscriptions(t *testing.T) {
	offset := billionSecondsOffset()
	store := newFakeStore()
	key := targetKeyFor(offset, 0, tickNow)
	store.membersByBirth[key] = []subscribers.Match{
		matchFor("sub-stale", "Ada", key, "[0]"),
	}
	pusher := &fakePusher{statusFunc: func(webpush.Subscription) int { return 410 }}

	sched, err := New(Config{
		Offsets:     []milestones.Offset{offset},
		Store:       store,
		Pusher:      pusher,
		LeadMinutes: []int{0},
	})
	if err != nil {
		t.Fatalf("building scheduler: %v", err)
	}
	if err := sched.RunTick(context.Background(), tickNow); err != nil {
		t.Fatalf("tick failed: %v", err)
	}

	if len(store.deleted) != 1 || store.deleted[0] != "sub-stale" {
		t.Fatalf("expected stale subscription purge, got %v", store.deleted)
	}
	if store.ledger[ledgerKey("sub-stale", offset.EventID, 0)] {
		t.Fatal("stale delivery must not be marked sent")
	}
}

func TestRunTickIsIdempotentAcrossRepeats(t *testing.T) {
	offset := billionSecondsOffset()
	store := newFakeStore()
	key := targetKeyFor(offset, 0, tickNow)
	store.membersByBirth[key] = []subscribers.Match{
		matchFor("sub-1", "Ada", key, "[0]"),
	}
	pusher := &fakePusher{}

	sched, err := New(Config{
		Offsets:     []milestones.Offset{offset},
		Store:       store,
		Pusher:      pusher,
		LeadMinutes: []int{0},
	})
	if err != nil {
		t.Fatalf("building scheduler: %v", err)
	}

	if err := sched.RunTick(context.Background(), tickNow); err != nil {
		t.Fatalf("first tick failed: %v", err)
	}
	if err := sched.RunTick(context.Background(), tickNow); err != nil {
		t.Fatalf("second tick failed: %v", err)
	}

	if len(pusher.sent) != 1 {
		t.Fatalf("ledger should suppress the repeat delivery, got %d sends", len(pusher.sent))
	}
}

func TestRunTickCalendarPassEmitsBirthday(t *testing.T) {
	// Ada born 1990-06-15 08:30 turns 40 at 2030-06-15 08:30.
	now := time.Date(2030, time.June, 15, 8, 30, 0, 0, time.UTC)
	store := newFakeStore()
	member := matchFor("sub-cal", "Ada", "1990-06-15T08:30", "[0]")
	store.membersByTime["08:30"] = []subscribers.Match{member}
	pusher := &fakePusher{}

	sched, err := New(Config{
		Offsets:     []milestones.Offset{billionSecondsOffset()},
		Store:       store,
		Pusher:      pusher,
		LeadMinutes: []int{0},
	})
	if err != nil {
		t.Fatalf("building scheduler: %v", err)
	}
	if err := sched.RunTick(context.Background(), now); err != nil {
		t.Fatalf("tick failed: %v", err)
	}

	if len(store.timeQueries) != 1 {
		t.Fatalf("expected one time-of-day query, got %d", len(store.timeQueries))
	}
	found := false
	for _, sent := range pusher.sent {
		if sent.payload.Body == "Ada: 40th Birthday" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the 40th birthday notification, got %+v", pusher.sent)
	}
	if !store.ledger[ledgerKey("sub-cal", "birthday-40", 0)] {
		t.Fatal("calendar delivery missing from the ledger")
	}
}

func TestRunTickAbortsCleanlyWhenStoreFails(t *testing.T) {
	store := newFakeStore()
	store.birthQueryErr = errors.New("store down")
	pusher := &fakePusher{}

	sched, err := New(Config{
		Offsets:     []milestones.Offset{billionSecondsOffset()},
		Store:       store,
		Pusher:      pusher,
		LeadMinutes: []int{0},
	})
	if err != nil {
		t.Fatalf("building scheduler: %v", err)
	}

	if err := sched.RunTick(context.Background(), tickNow); err == nil {
		t.Fatal("expected tick to surface the store failure")
	}
	if len(pusher.sent) != 0 {
		t.Fatalf("no deliveries may happen on an aborted tick, got %d", len(pusher.sent))
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Config{Pusher: &fakePusher{}, Offsets: []milestones.Offset{billionSecondsOffset()}}); err == nil {
		t.Fatal("expected error for missing store")
	}
	if _, err := New(Config{Store: newFakeStore(), Offsets: []milestones.Offset{billionSecondsOffset()}}); err == nil {
		t.Fatal("expected error for missing pusher")
	}
	if _, err := New(Config{Store: newFakeStore(), Pusher: &fakePusher{}}); err == nil {
		t.Fatal("expected error for missing offsets")
	}
}
