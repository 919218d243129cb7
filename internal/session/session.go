package session

import (
	"errors"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Session holds the configured API bearer token and the identity claims it
// carries. The terminal does not verify the signature — the remote system
// does — it only reads tenant/operator identity and the expiry so local
// records can be stamped and an expired token can be reported early.
type Session struct {
	Token        string
	TenantID     string
	OperatorID   string
	OperatorName string
	ExpiresAt    time.Time
}

type tokenClaims struct {
	jwtlib.RegisteredClaims
	TenantID     string `json:"tenant_id"`
	OperatorName string `json:"name"`
}

var ErrNoToken = errors.New("session: no API token configured")

// FromToken parses the bearer token's claims without verifying them.
func FromToken(token string) (*Session, error) {
	if token == "" {
		return nil, ErrNoToken
	}

	claims := &tokenClaims{}
	parser := jwtlib.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("session: parse token: %w", err)
	}

	sess := &Session{
		Token:        token,
		TenantID:     claims.TenantID,
		OperatorName: claims.OperatorName,
	}
	if sub, err := claims.GetSubject(); err == nil {
		sess.OperatorID = sub
	}
	if claims.ExpiresAt != nil {
		sess.ExpiresAt = claims.ExpiresAt.Time
	}
	if sess.TenantID == "" {
		return nil, fmt.Errorf("session: token carries no tenant claim")
	}
	return sess, nil
}

// Expired reports whether the token's expiry has passed. Tokens without an
// exp claim never expire locally.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
