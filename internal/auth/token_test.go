package auth

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"genaccess.org/internal/revocation"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTokens(t *testing.T, opts ...TokenOption) (*TokenService, *revocation.Memory, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	ledger := revocation.NewMemory()
	opts = append([]TokenOption{WithClock(clock.Now), WithTokenTTL(time.Hour)}, opts...)
	svc, err := NewTokenService(testSecret, ledger, opts...)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return svc, ledger, clock
}

func alice() Identity {
	return IdentityWithAuthorities("u1", "alice", "t1", "ROLE_CLIENT_ADMIN", "user_read")
}

func TestIssueThenValidateReturnsSubject(t *testing.T) {
	svc, _, clock := newTestTokens(t)
	token, exp, err := svc.Issue(alice())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !exp.Equal(clock.Now().Add(time.Hour)) {
		t.Fatalf("unexpected expiry %v", exp)
	}
	subject, err := svc.Subject(context.Background(), token)
	if err != nil {
		t.Fatalf("Subject: %v", err)
	}
	if subject != "alice" {
		t.Fatalf("subject = %q, want alice", subject)
	}
	claims, err := svc.Validate(context.Background(), token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.ClientID != "t1" || len(claims.Roles) != 1 || claims.Roles[0] != RoleClientAdmin {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestIssueRequiresUsername(t *testing.T) {
	svc, _, _ := newTestTokens(t)
	if _, _, err := svc.Issue(Identity{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRevokedTokenStaysInvalid(t *testing.T) {
	ctx := context.Background()
	svc, ledger, _ := newTestTokens(t)
	token, _, err := svc.Issue(alice())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := svc.Revoke(ctx, token); err != nil {
			t.Fatalf("Revoke #%d: %v", i+1, err)
		}
		if _, err := svc.Validate(ctx, token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken after revoke, got %v", err)
		}
	}
	if n, _ := ledger.Len(ctx); n != 1 {
		t.Fatalf("ledger size = %d, want 1", n)
	}
}

func TestExpiredTokenIsInvalid(t *testing.T) {
	svc, _, clock := newTestTokens(t)
	token, _, err := svc.Issue(alice())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	clock.Advance(time.Hour)
	if _, err := svc.Validate(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expiry at exactly TTL, got %v", err)
	}
	clock.Advance(time.Minute)
	if _, err := svc.Validate(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestTamperedAndForeignTokensAreInvalid(t *testing.T) {
	ctx := context.Background()
	svc, _, clock := newTestTokens(t)
	token, _, err := svc.Issue(alice())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	parts := strings.Split(token, ".")
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	forged := bytes.Replace(payload, []byte(`"alice"`), []byte(`"mallory"`), 1)
	parts[1] = base64.RawURLEncoding.EncodeToString(forged)
	if _, err := svc.Validate(ctx, strings.Join(parts, ".")); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("tampered token accepted: %v", err)
	}

	other, err := NewTokenService([]byte("ffffffffffffffffffffffffffffffff"), revocation.NewMemory(), WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	foreign, _, err := other.Issue(alice())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := svc.Validate(ctx, foreign); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("token signed with another key accepted: %v", err)
	}

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Issuer:    defaultIssuer,
		Subject:   "alice",
		IssuedAt:  jwt.NewNumericDate(clock.Now()),
		ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := svc.Validate(ctx, unsigned); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("unsigned token accepted: %v", err)
	}

	for _, garbage := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := svc.Validate(ctx, garbage); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("garbage %q accepted: %v", garbage, err)
		}
	}
}

func TestRevokeRejectsMalformedToken(t *testing.T) {
	svc, _, _ := newTestTokens(t)
	for _, tok := range []string{"", "garbage", "a.b.c"} {
		if err := svc.Revoke(context.Background(), tok); !errors.Is(err, ErrMalformedToken) {
			t.Fatalf("Revoke(%q) = %v, want ErrMalformedToken", tok, err)
		}
	}
}

func TestRevokePurgesExpiredEntries(t *testing.T) {
	ctx := context.Background()
	svc, ledger, clock := newTestTokens(t)

	first, _, _ := svc.Issue(alice())
	if err := svc.Revoke(ctx, first); err != nil {
		t.Fatalf("Revoke first: %v", err)
	}
	clock.Advance(2 * time.Hour)
	second, _, _ := svc.Issue(IdentityWithAuthorities("u2", "bob", "t1"))
	if err := svc.Revoke(ctx, second); err != nil {
		t.Fatalf("Revoke second: %v", err)
	}

	if ok, _ := ledger.IsRevoked(ctx, first); ok {
		t.Fatalf("expired entry survived cleanup")
	}
	if n, _ := ledger.Len(ctx); n != 1 {
		t.Fatalf("ledger size = %d, want 1", n)
	}
}

func TestValidationLogsReasonOnly(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	svc, _, _ := newTestTokens(t, WithTokenLogger(logger))
	ctx := context.Background()

	token, _, _ := svc.Issue(alice())
	_ = svc.Revoke(ctx, token)
	_, err := svc.Validate(ctx, token)
	if err != ErrInvalidToken {
		t.Fatalf("expected bare ErrInvalidToken, got %v", err)
	}
	if !strings.Contains(buf.String(), `"reason":"revoked"`) {
		t.Fatalf("reason not logged: %s", buf.String())
	}
}

type failingLedger struct{ revocation.Memory }

func (*failingLedger) IsRevoked(context.Context, string) (bool, error) {
	return false, errors.New("ledger down")
}

func TestLedgerFailureFailsClosed(t *testing.T) {
	svc, err := NewTokenService(testSecret, &failingLedger{})
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	token, _, err := svc.Issue(alice())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := svc.Validate(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken when ledger fails, got %v", err)
	}
}

func TestSecretValidation(t *testing.T) {
	if _, err := NewTokenService([]byte("short"), revocation.NewMemory()); !errors.Is(err, ErrWeakSecret) {
		t.Fatalf("expected ErrWeakSecret, got %v", err)
	}
	if _, err := DecodeSecret(base64.StdEncoding.EncodeToString([]byte("too-short"))); !errors.Is(err, ErrWeakSecret) {
		t.Fatalf("expected ErrWeakSecret for short decoded secret, got %v", err)
	}
	if _, err := DecodeSecret("%%%not-base64%%%"); err == nil {
		t.Fatalf("expected decode error")
	}
	raw, err := DecodeSecret(base64.StdEncoding.EncodeToString(testSecret))
	if err != nil {
		t.Fatalf("DecodeSecret: %v", err)
	}
	if !bytes.Equal(raw, testSecret) {
		t.Fatalf("decoded secret mismatch")
	}
}
