package webpush

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// defaultTokenTTL follows the push-service convention of short-lived
	// identity tokens; services reject anything beyond 24h.
	defaultTokenTTL = 12 * time.Hour

	rawPrivateKeyLength = 32
	rawPublicKeyLength  = 65
)

var (
	errMissingPrivateKey = errors.New("webpush: VAPID private key must be provided")
	errMissingContact    = errors.New("webpush: VAPID contact URI must be provided")
	errKeyMismatch       = errors.New("webpush: VAPID public key does not match the private key")
)

// VAPIDConfig configures the application identity used to sign push requests.
type VAPIDConfig struct {
	// PrivateKey is the base64url raw 32-byte P-256 scalar.
	PrivateKey string
	// PublicKey is the base64url uncompressed 65-byte point. Optional; it is
	// derived from the private key and, when supplied, checked against it.
	PublicKey string
	// Contact is the mailto: or https: URI identifying the operator.
	Contact string
	// TokenTTL bounds token lifetime; zero means defaultTokenTTL.
	TokenTTL time.Duration
	Clock    func() time.Time
}

// VAPIDSigner issues the Authorization header for one push delivery.
type VAPIDSigner struct {
	key       *ecdsa.PrivateKey
	publicB64 string
	contact   string
	ttl       time.Duration
	clock     func() time.Time
}

// NewVAPIDSigner parses the configured key material and constructs the signer.
func NewVAPIDSigner(cfg VAPIDConfig) (*VAPIDSigner, error) {
	if cfg.PrivateKey == "" {
		return nil, errMissingPrivateKey
	}
	if cfg.Contact == "" {
		return nil, errMissingContact
	}

	scalar, err := decodeKey(cfg.PrivateKey, rawPrivateKeyLength)
	if err != nil {
		return nil, fmt.Errorf("webpush: decoding VAPID private key: %w", err)
	}

	key := &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{Curve: elliptic.P256()},
		D:         new(big.Int).SetBytes(scalar),
	}
	key.PublicKey.X, key.PublicKey.Y = key.Curve.ScalarBaseMult(scalar)

	ecdhKey, err := key.ECDH()
	if err != nil {
		return nil, fmt.Errorf("webpush: VAPID private key is not a usable P-256 scalar: %w", err)
	}
	derived := base64.RawURLEncoding.EncodeToString(ecdhKey.PublicKey().Bytes())
	if cfg.PublicKey != "" {
		supplied, err := decodeKey(cfg.PublicKey, rawPublicKeyLength)
		if err != nil {
			return nil, fmt.Errorf("webpush: decoding VAPID public key: %w", err)
		}
		if base64.RawURLEncoding.EncodeToString(supplied) != derived {
			return nil, errKeyMismatch
		}
	}

	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &VAPIDSigner{
		key:       key,
		publicB64: derived,
		contact:   cfg.Contact,
		ttl:       ttl,
		clock:     clock,
	}, nil
}

// PublicKey returns the base64url application server key browsers subscribe
// with.
func (s *VAPIDSigner) PublicKey() string {
	return s.publicB64
}

// AuthorizationHeader builds the `vapid t=..., k=...` header for the endpoint.
// The audience is the endpoint's scheme://host, never the full path.
func (s *VAPIDSigner) AuthorizationHeader(endpoint string) (string, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("webpush: parsing endpoint: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("webpush: endpoint %q lacks scheme or host", endpoint)
	}

	now := s.clock().UTC()
	claims := jwt.MapClaims{
		"aud": parsed.Scheme + "://" + parsed.Host,
		"exp": now.Add(s.ttl).Unix(),
		"sub": s.contact,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("webpush: signing VAPID token: %w", err)
	}

	return fmt.Sprintf("vapid t=%s, k=%s", token, s.publicB64), nil
}

// GenerateVAPIDKeys produces a fresh application key pair, base64url encoded
// the way subscribe calls and configuration expect.
func GenerateVAPIDKeys() (privateKey, publicKey string, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", err
	}
	ecdhKey, err := key.ECDH()
	if err != nil {
		return "", "", err
	}
	scalar := make([]byte, rawPrivateKeyLength)
	key.D.FillBytes(scalar)
	return base64.RawURLEncoding.EncodeToString(scalar),
		base64.RawURLEncoding.EncodeToString(ecdhKey.PublicKey().Bytes()), nil
}

// decodeKey accepts the base64 variants browsers and tooling emit for key
// material and enforces the expected raw length.
func decodeKey(value string, length int) ([]byte, error) {
	encodings := []*base64.Encoding{
		base64.RawURLEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.StdEncoding,
	}
	for _, encoding := range encodings {
		decoded, err := encoding.DecodeString(value)
		if err != nil {
			continue
		}
		if len(decoded) != length {
			return nil, fmt.Errorf("decoded key is %d bytes, want %d", len(decoded), length)
		}
		return decoded, nil
	}
	return nil, errors.New("value is not valid base64")
}
