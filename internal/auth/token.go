package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"genaccess.org/internal/obs"
)

const (
	defaultIssuer   = "genaccess"
	defaultTokenTTL = 24 * time.Hour
	maxClockSkew    = 5 * time.Second

	// MinSecretBytes is the shortest decoded signing key accepted for HS256.
	MinSecretBytes = 32
)

var ErrWeakSecret = errors.New("auth: signing secret too short")

// RevocationLedger records tokens invalidated before their natural expiry.
// Implementations must be safe for concurrent use.
type RevocationLedger interface {
	Revoke(ctx context.Context, token string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, token string) (bool, error)
	// Purge removes every entry whose expiry is at or before now.
	Purge(ctx context.Context, now time.Time) (int, error)
	Len(ctx context.Context) (int, error)
}

// Claims are the JWT claims carried by session tokens. ClientID and Roles
// are informational; authorities are re-read from the store on every request.
type Claims struct {
	ClientID string   `json:"client_id,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// TokenService issues, validates and revokes HS256 session tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	issuer string
	ledger RevocationLedger
	now    func() time.Time
	logger *slog.Logger
}

// TokenOption configures a TokenService.
type TokenOption func(*TokenService) error

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// WithTokenTTL configures session lifetime.
func WithTokenTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) error {
		if ttl <= 0 {
			return fmt.Errorf("%w: token ttl must be positive", ErrInvalidInput)
		}
		s.ttl = ttl
		return nil
	}
}

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) TokenOption {
	return func(s *TokenService) error {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			s.issuer = issuer
		}
		return nil
	}
}

func WithTokenLogger(l *slog.Logger) TokenOption {
	return func(s *TokenService) error {
		s.logger = l
		return nil
	}
}

// DecodeSecret decodes a base64 signing secret and enforces MinSecretBytes.
func DecodeSecret(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, fmt.Errorf("%w: secret is empty", ErrWeakSecret)
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		raw, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(encoded, "="))
		if err != nil {
			return nil, fmt.Errorf("auth: decode signing secret: %w", err)
		}
	}
	if len(raw) < MinSecretBytes {
		return nil, fmt.Errorf("%w: got %d bytes, need %d", ErrWeakSecret, len(raw), MinSecretBytes)
	}
	return raw, nil
}

// NewTokenService constructs a service signing with secret. The ledger is
// owned by the returned service.
func NewTokenService(secret []byte, ledger RevocationLedger, opts ...TokenOption) (*TokenService, error) {
	if len(secret) < MinSecretBytes {
		return nil, fmt.Errorf("%w: got %d bytes, need %d", ErrWeakSecret, len(secret), MinSecretBytes)
	}
	if ledger == nil {
		return nil, errors.New("auth: revocation ledger is required")
	}
	s := &TokenService{
		secret: append([]byte(nil), secret...),
		ttl:    defaultTokenTTL,
		issuer: defaultIssuer,
		ledger: ledger,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *TokenService) TTL() time.Duration { return s.ttl }

// Issue signs a token for id with subject = username.
func (s *TokenService) Issue(id Identity) (string, time.Time, error) {
	username := strings.TrimSpace(id.Username)
	if username == "" {
		return "", time.Time{}, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	now := s.now().UTC().Truncate(time.Second)
	expiresAt := now.Add(s.ttl)
	claims := Claims{
		ClientID: id.ClientID,
		Roles:    id.Roles(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	obs.TokenIssued()
	return signed, expiresAt, nil
}

// Validate verifies signature, expiry and revocation. Every failure is
// reported as ErrInvalidToken; the reason is only logged.
func (s *TokenService) Validate(ctx context.Context, token string) (*Claims, error) {
	claims, reason := s.validate(ctx, token)
	obs.TokenValidated(reason)
	if reason != "ok" {
		s.log().DebugContext(ctx, "token rejected", "reason", reason)
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Subject returns the username bound to a valid token.
func (s *TokenService) Subject(ctx context.Context, token string) (string, error) {
	claims, err := s.Validate(ctx, token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (s *TokenService) validate(ctx context.Context, token string) (*Claims, string) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, "empty"
	}
	revoked, err := s.ledger.IsRevoked(ctx, token)
	if err != nil {
		s.log().ErrorContext(ctx, "revocation lookup failed", "error", err)
		return nil, "ledger_error"
	}
	if revoked {
		return nil, "revoked"
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(s.issuer),
	)
	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, "expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return nil, "bad_signature"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, "malformed"
	case err != nil:
		return nil, "invalid_claims"
	}
	if !parsed.Valid || strings.TrimSpace(claims.Subject) == "" || claims.IssuedAt == nil {
		return nil, "invalid_claims"
	}
	// Allow a small clock skew between replicas when checking issued-at.
	if claims.IssuedAt.After(s.now().Add(maxClockSkew)) {
		return nil, "issued_in_future"
	}
	return claims, "ok"
}

// Revoke records token in the ledger until its own expiry and then purges
// expired entries. The signature is not checked but the token must decode.
// Revoking twice is a no-op.
func (s *TokenService) Revoke(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: token is empty", ErrMalformedToken)
	}
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if claims.ExpiresAt == nil {
		return fmt.Errorf("%w: exp claim missing", ErrMalformedToken)
	}
	if err := s.ledger.Revoke(ctx, token, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	obs.TokenRevoked()

	now := s.now()
	removed, err := s.ledger.Purge(ctx, now)
	if err != nil {
		s.log().WarnContext(ctx, "revocation purge failed", "error", err)
		return nil
	}
	if n, err := s.ledger.Len(ctx); err == nil {
		obs.SetLedgerEntries(n)
	}
	if removed > 0 {
		s.log().DebugContext(ctx, "revocation ledger purged", "removed", removed)
	}
	return nil
}

func (s *TokenService) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return obs.Logger()
}
