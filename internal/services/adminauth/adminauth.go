// Package adminauth mints and verifies the HS256 bearer tokens that guard the admin API.
package adminauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// RoleAdmin is the only role accepted by the admin API.
const RoleAdmin = "admin"

const roleClaim = "role"

// MinSecretLength matches the ADMIN_JWT_SECRET validation rule.
const MinSecretLength = 32

var (
	// ErrInvalidToken covers bad signatures, expired tokens and wrong issuers.
	ErrInvalidToken = errors.New("invalid admin token")
	// ErrForbidden is returned for valid tokens without the admin role.
	ErrForbidden = errors.New("token lacks admin role")
)

// Claims are the fields the admin API cares about.
type Claims struct {
	Subject   string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Authority signs and verifies admin tokens with a shared secret.
type Authority struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// New creates an Authority. secret must be at least MinSecretLength bytes.
func New(secret, issuer string) (*Authority, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("admin secret must be at least %d characters", MinSecretLength)
	}
	return &Authority{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// WithClock returns a copy of a using now as its clock.
func (a *Authority) WithClock(now func() time.Time) *Authority {
	cp := *a
	cp.now = now
	return &cp
}

// Mint issues an admin token for subject valid for ttl.
func (a *Authority) Mint(subject string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("token ttl must be positive")
	}
	now := a.now()
	tok, err := jwt.NewBuilder().
		Issuer(a.issuer).
		Subject(subject).
		IssuedAt(now).
		Expiration(now.Add(ttl)).
		Claim(roleClaim, RoleAdmin).
		Build()
	if err != nil {
		return "", fmt.Errorf("failed to build token: %w", err)
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, a.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return string(signed), nil
}

// Verify checks signature, expiry, issuer and role.
func (a *Authority) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.Parse([]byte(tokenString), jwt.WithKey(jwa.HS256, a.secret), jwt.WithValidate(false))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	err = jwt.Validate(token,
		jwt.WithClock(jwt.ClockFunc(a.now)),
		jwt.WithAcceptableSkew(30*time.Second),
		jwt.WithIssuer(a.issuer),
		jwt.WithRequiredClaim(jwt.ExpirationKey),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims := &Claims{
		Subject:   token.Subject(),
		IssuedAt:  token.IssuedAt(),
		ExpiresAt: token.Expiration(),
	}
	if role, ok := token.Get(roleClaim); ok {
		if roleStr, ok := role.(string); ok {
			claims.Role = roleStr
		}
	}
	if claims.Role != RoleAdmin {
		return nil, ErrForbidden
	}

	return claims, nil
}
