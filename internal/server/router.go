package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ptarjan/nerdiversary-sub000/internal/feed"
	"github.com/ptarjan/nerdiversary-sub000/internal/milestones"
	"github.com/ptarjan/nerdiversary-sub000/internal/subscribers"
)

const birthQueryLayout = "2006-01-02T15:04"

var (
	errMissingSubscriberStore = errors.New("subscriber store dependency required")
	errMissingVAPIDPublicKey  = errors.New("VAPID public key dependency required")
)

// SubscriberStore is the slice of the subscriber service the HTTP surface
// needs. *subscribers.Service satisfies it.
type SubscriberStore interface {
	Upsert(ctx context.Context, request subscribers.UpsertRequest) (subscribers.Subscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}

type Dependencies struct {
	Subscribers    SubscriberStore
	VAPIDPublicKey string
	HorizonYears   int
	Logger         *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Subscribers == nil {
		return nil, errMissingSubscriberStore
	}
	if strings.TrimSpace(deps.VAPIDPublicKey) == "" {
		return nil, errMissingVAPIDPublicKey
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		subscribers:    deps.Subscribers,
		vapidPublicKey: deps.VAPIDPublicKey,
		horizonYears:   deps.HorizonYears,
		logger:         logger,
	}

	router.GET("/push/vapid-public-key", handler.handleVAPIDPublicKey)
	router.POST("/push/subscribe", handler.handleSubscribe)
	router.POST("/push/unsubscribe", handler.handleUnsubscribe)
	router.GET("/api/milestones", handler.handleMilestones)
	router.GET("/calendar.ics", handler.handleCalendarFeed)

	return router, nil
}

type httpHandler struct {
	subscribers    SubscriberStore
	vapidPublicKey string
	horizonYears   int
	logger         *zap.Logger
}

type pushSubscriptionPayload struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256DH string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

type familyMemberPayload struct {
	Name          string `json:"name"`
	BirthDatetime string `json:"birth_datetime"`
}

type subscribeRequestPayload struct {
	Subscription pushSubscriptionPayload `json:"subscription"`
	Family       []familyMemberPayload   `json:"family"`
	LeadMinutes  []int                   `json:"leadMinutes"`
}

type unsubscribeRequestPayload struct {
	Endpoint string `json:"endpoint"`
}

func (h *httpHandler) handleVAPIDPublicKey(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"publicKey": h.vapidPublicKey})
}

func (h *httpHandler) handleSubscribe(c *gin.Context) {
	var request subscribeRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if strings.TrimSpace(request.Subscription.Endpoint) == "" ||
		strings.TrimSpace(request.Subscription.Keys.P256DH) == "" ||
		strings.TrimSpace(request.Subscription.Keys.Auth) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_subscription"})
		return
	}

	if len(request.Family) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_family"})
		return
	}

	members := make([]subscribers.MemberInput, 0, len(request.Family))
	for _, member := range request.Family {
		birth, err := subscribers.ParseBirthDatetime(member.BirthDatetime)
		if err != nil || strings.TrimSpace(member.Name) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_family_member"})
			return
		}
		members = append(members, subscribers.MemberInput{Name: member.Name, Birth: birth})
	}

	saved, err := h.subscribers.Upsert(c.Request.Context(), subscribers.UpsertRequest{
		Endpoint:    request.Subscription.Endpoint,
		P256DH:      request.Subscription.Keys.P256DH,
		Auth:        request.Subscription.Keys.Auth,
		LeadMinutes: request.LeadMinutes,
		Members:     members,
	})
	if err != nil {
		h.logger.Error("subscribe failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "subscribe_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"subscriptionId": saved.ID})
}

func (h *httpHandler) handleUnsubscribe(c *gin.Context) {
	var request unsubscribeRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Endpoint) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if err := h.subscribers.DeleteByEndpoint(c.Request.Context(), request.Endpoint); err != nil {
		h.logger.Error("unsubscribe failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unsubscribe_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

type milestonePayload struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Date        string `json:"date"`
	Category    string `json:"category"`
	Icon        string `json:"icon"`
}

func (h *httpHandler) handleMilestones(c *gin.Context) {
	birth, ok := h.parseBirthQuery(c)
	if !ok {
		return
	}

	events, err := milestones.Calculate(birth, milestones.Options{HorizonYears: h.horizonYears})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_birth"})
		return
	}

	payload := make([]milestonePayload, 0, len(events))
	for _, event := range events {
		payload = append(payload, milestonePayload{
			ID:          event.ID,
			Title:       event.Title,
			Description: event.Description,
			Date:        event.Date.UTC().Format(time.RFC3339),
			Category:    string(event.Kind.Category()),
			Icon:        event.Icon,
		})
	}
	c.JSON(http.StatusOK, gin.H{"milestones": payload})
}

func (h *httpHandler) handleCalendarFeed(c *gin.Context) {
	birth, ok := h.parseBirthQuery(c)
	if !ok {
		return
	}

	data, err := feed.Export(birth, feed.Options{HorizonYears: h.horizonYears, IncludePast: true})
	if err != nil {
		h.logger.Error("calendar export failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export_failed"})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="nerdiversary.ics"`)
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", data)
}

// parseBirthQuery reads the ?birth= query in the same minute-precision layout
// subscriptions store. A bare date (no time) is accepted as midnight UTC.
func (h *httpHandler) parseBirthQuery(c *gin.Context) (time.Time, bool) {
	raw := strings.TrimSpace(c.Query("birth"))
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_birth"})
		return time.Time{}, false
	}
	if parsed, err := time.ParseInLocation(birthQueryLayout, raw, time.UTC); err == nil {
		return parsed, true
	}
	if parsed, err := time.ParseInLocation("2006-01-02", raw, time.UTC); err == nil {
		return parsed, true
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_birth"})
	return time.Time{}, false
}
