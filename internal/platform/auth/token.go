package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken wraps every verification failure.
var ErrInvalidToken = errors.New("invalid token")

const DefaultTokenTTL = 8 * time.Hour

// Claims are the JWT claims the API understands.
type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

// TokenConfig describes HS256 tokens. Issuer and Audience are checked only
// when set.
type TokenConfig struct {
	Issuer     string
	Audience   string
	SigningKey []byte
	TTL        time.Duration
}

// Tokens issues and verifies bearer tokens for clinic staff.
type Tokens struct {
	cfg  TokenConfig
	now  func() time.Time
	opts []jwt.ParserOption
}

func NewTokens(cfg TokenConfig) *Tokens {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTokenTTL
	}
	t := &Tokens{cfg: cfg, now: time.Now}
	t.opts = []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return t.now() }),
	}
	if cfg.Issuer != "" {
		t.opts = append(t.opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		t.opts = append(t.opts, jwt.WithAudience(cfg.Audience))
	}
	return t
}

// Issue signs a token for subject valid for the configured TTL.
func (t *Tokens) Issue(subject string, roles []string) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("issuing token: subject is required")
	}
	now := t.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    t.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.cfg.TTL)),
		},
		Roles: roles,
	}
	if t.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{t.cfg.Audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.cfg.SigningKey)
}

// Verify parses raw and checks signature, expiry, issuer and audience.
func (t *Tokens) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return t.cfg.SigningKey, nil
	}, t.opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}
