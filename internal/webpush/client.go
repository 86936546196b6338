package webpush

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const (
	defaultMessageTTL = 24 * time.Hour
	defaultUrgency    = "normal"
)

var errMissingSigner = errors.New("webpush: VAPID signer is required")

// Subscription is the delivery target: the push-service endpoint plus the
// subscriber's key material, exactly as the browser handed them out.
type Subscription struct {
	Endpoint string
	P256DH   string
	Auth     string
}

// ClientConfig configures push delivery.
type ClientConfig struct {
	Signer     *VAPIDSigner
	HTTPClient *http.Client
	// MessageTTL is advertised to the push service via the TTL header.
	MessageTTL time.Duration
	Urgency    string
}

// Client performs Web Push deliveries: VAPID identity, aes128gcm payload,
// one POST per message.
type Client struct {
	signer     *VAPIDSigner
	httpClient *http.Client
	ttlSeconds int
	urgency    string
}

// NewClient validates the configuration and constructs a Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Signer == nil {
		return nil, errMissingSigner
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	ttl := cfg.MessageTTL
	if ttl <= 0 {
		ttl = defaultMessageTTL
	}
	urgency := cfg.Urgency
	if urgency == "" {
		urgency = defaultUrgency
	}
	return &Client{
		signer:     cfg.Signer,
		httpClient: httpClient,
		ttlSeconds: int(ttl / time.Second),
		urgency:    urgency,
	}, nil
}

// SendResult classifies one delivery attempt that reached the push service.
type SendResult struct {
	StatusCode int
}

// Delivered reports whether the push service accepted the message.
func (r SendResult) Delivered() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Stale reports a permanently gone subscription that must be purged.
func (r SendResult) Stale() bool {
	return r.StatusCode == http.StatusNotFound || r.StatusCode == http.StatusGone
}

// Send encrypts the payload for the subscription and posts it. A non-nil
// error means the request never completed; any HTTP status comes back in the
// result for the caller to classify.
func (c *Client) Send(ctx context.Context, subscription Subscription, payload []byte) (SendResult, error) {
	body, err := Encrypt(subscription.P256DH, subscription.Auth, payload)
	if err != nil {
		return SendResult{}, err
	}
	authorization, err := c.signer.AuthorizationHeader(subscription.Endpoint)
	if err != nil {
		return SendResult{}, err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, subscription.Endpoint, bytes.NewReader(body))
	if err != nil {
		return SendResult{}, fmt.Errorf("webpush: building request: %w", err)
	}
	request.Header.Set("Content-Encoding", "aes128gcm")
	request.Header.Set("Content-Type", "application/octet-stream")
	request.Header.Set("TTL", strconv.Itoa(c.ttlSeconds))
	request.Header.Set("Urgency", c.urgency)
	request.Header.Set("Authorization", authorization)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return SendResult{}, fmt.Errorf("webpush: posting to push service: %w", err)
	}
	defer response.Body.Close()

	return SendResult{StatusCode: response.StatusCode}, nil
}
