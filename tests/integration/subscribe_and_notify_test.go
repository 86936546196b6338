package integration_test

import (
	"bytes"
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ptarjan/nerdiversary-sub000/internal/milestones"
	"github.com/ptarjan/nerdiversary-sub000/internal/scheduler"
	"github.com/ptarjan/nerdiversary-sub000/internal/server"
	"github.com/ptarjan/nerdiversary-sub000/internal/subscribers"
	"github.com/ptarjan/nerdiversary-sub000/internal/webpush"
)

const jsonContentType = "application/json"

type pushServiceRecorder struct {
	mu       sync.Mutex
	requests []*http.Request
	status   int
}

func (p *pushServiceRecorder) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.requests = append(p.requests, r.Clone(context.Background()))
		status := p.status
		p.mu.Unlock()
		if status == 0 {
			status = http.StatusCreated
		}
		w.WriteHeader(status)
	}
}

func (p *pushServiceRecorder) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func (p *pushServiceRecorder) setStatus(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = status
}

func newSubscriberKeys(t *testing.T) (p256dh, auth string) {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate subscriber key: %v", err)
	}
	authSecret := make([]byte, 16)
	if _, err := rand.Read(authSecret); err != nil {
		t.Fatalf("failed to generate auth secret: %v", err)
	}
	return base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
		base64.RawURLEncoding.EncodeToString(authSecret)
}

type fixture struct {
	store     *subscribers.Service
	scheduler *scheduler.Scheduler
	api       *httptest.Server
	push      *pushServiceRecorder
	pushURL   string
	now       time.Time
}

func newFixture(t *testing.T, dsn string) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	now := time.Date(2030, time.January, 1, 0, 0, 0, 0, time.UTC)

	push := &pushServiceRecorder{}
	pushServer := httptest.NewServer(push.handler())
	t.Cleanup(pushServer.Close)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&subscribers.Subscription{}, &subscribers.FamilyMember{}, &subscribers.SentNotification{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	store, err := subscribers.NewService(subscribers.ServiceConfig{
		Database: db,
		Clock:    func() time.Time { return now },
		Logger:   zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to build subscriber store: %v", err)
	}

	privateKey, _, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("failed to generate VAPID keys: %v", err)
	}
	signer, err := webpush.NewVAPIDSigner(webpush.VAPIDConfig{
		PrivateKey: privateKey,
		Contact:    "mailto:ops@nerdiversary.app",
	})
	if err != nil {
		t.Fatalf("failed to build VAPID signer: %v", err)
	}
	pusher, err := webpush.NewClient(webpush.ClientConfig{Signer: signer})
	if err != nil {
		t.Fatalf("failed to build push client: %v", err)
	}

	offsets, err := milestones.BuildOffsetTable(120)
	if err != nil {
		t.Fatalf("failed to build offset table: %v", err)
	}
	ticker, err := scheduler.New(scheduler.Config{
		Offsets:     offsets,
		Store:       store,
		Pusher:      pusher,
		LeadMinutes: []int{0},
		Clock:       func() time.Time { return now },
		Logger:      zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to build scheduler: %v", err)
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Subscribers:    store,
		VAPIDPublicKey: signer.PublicKey(),
		HorizonYears:   120,
		Logger:         zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	apiServer := httptest.NewServer(handler)
	t.Cleanup(apiServer.Close)

	return &fixture{
		store:     store,
		scheduler: ticker,
		api:       apiServer,
		push:      push,
		pushURL:   pushServer.URL,
		now:       now,
	}
}

func (f *fixture) subscribe(t *testing.T, endpoint, name string, birth time.Time) {
	t.Helper()
	p256dh, auth := newSubscriberKeys(t)
	payload := map[string]any{
		"subscription": map[string]any{
			"endpoint": endpoint,
			"keys":     map[string]string{"p256dh": p256dh, "auth": auth},
		},
		"family": []map[string]string{
			{"name": name, "birth_datetime": subscribers.FormatBirthDatetime(birth)},
		},
		"leadMinutes": []int{0},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to encode subscribe payload: %v", err)
	}

	response, err := http.Post(f.api.URL+"/push/subscribe", jsonContentType, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("subscribe request failed: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		t.Fatalf("subscribe returned %d", response.StatusCode)
	}
}

func TestSubscribeAndNotifyFlow(t *testing.T) {
	f := newFixture(t, "file:integration_notify?mode=memory&cache=shared")

	// born exactly one billion seconds before the tick minute
	birth := f.now.Add(-1_000_000_000 * time.Second)
	f.subscribe(t, f.pushURL+"/sub/ada", "Ada", birth)

	if err := f.scheduler.RunTick(context.Background(), f.now); err != nil {
		t.Fatalf("tick failed: %v", err)
	}

	delivered := f.push.count()
	if delivered == 0 {
		t.Fatal("expected at least one push delivery")
	}
	request := f.push.requests[0]
	if request.Header.Get("Content-Encoding") != "aes128gcm" {
		t.Fatalf("unexpected content encoding %q", request.Header.Get("Content-Encoding"))
	}
	if !strings.HasPrefix(request.Header.Get("Authorization"), "vapid t=") {
		t.Fatalf("missing VAPID authorization header: %q", request.Header.Get("Authorization"))
	}

	// the ledger keeps a replayed tick from double-notifying
	if err := f.scheduler.RunTick(context.Background(), f.now); err != nil {
		t.Fatalf("replayed tick failed: %v", err)
	}
	if got := f.push.count(); got != delivered {
		t.Fatalf("replayed tick double-notified: %d deliveries, want %d", got, delivered)
	}
}

func TestStaleSubscriptionPurgedOnGone(t *testing.T) {
	f := newFixture(t, "file:integration_stale?mode=memory&cache=shared")
	f.push.setStatus(http.StatusGone)

	endpoint := f.pushURL + "/sub/grace"
	birth := f.now.Add(-1_000_000_000 * time.Second)
	f.subscribe(t, endpoint, "Grace", birth)

	if err := f.scheduler.RunTick(context.Background(), f.now); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	attempted := f.push.count()
	if attempted == 0 {
		t.Fatal("expected at least one delivery attempt")
	}

	// a purged subscription no longer matches on the next tick
	if err := f.scheduler.RunTick(context.Background(), f.now); err != nil {
		t.Fatalf("second tick failed: %v", err)
	}
	if got := f.push.count(); got != attempted {
		t.Fatalf("stale subscription was not purged: %d attempts, want %d", got, attempted)
	}
}
