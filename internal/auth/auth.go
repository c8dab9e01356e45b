// Package auth mints and verifies the two token kinds the world server
// trusts: signed connection tokens presented by player WebSocket clients,
// and single-use feedback tokens attached to reflection webhooks.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/havenport/worldserver/internal/config"
)

// ConnectionClaims is the payload carried by a player connection token.
type ConnectionClaims struct {
	ResidentID string `json:"residentId"`
	PassportNo string `json:"passportNo"`
	Type       string `json:"type"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies connection and feedback tokens. The
// registration-token hash helpers are package-level functions.
type Tokens struct {
	cfg config.AuthConfig

	mu        sync.Mutex
	feedback  map[string]feedbackGrant // token -> grant
}

type feedbackGrant struct {
	residentID string
	expiresAt  time.Time
	consumed   bool
}

func New(cfg config.AuthConfig) *Tokens {
	return &Tokens{cfg: cfg, feedback: make(map[string]feedbackGrant)}
}

// IssueConnectionToken signs a connection token for a newly registered
// or returning resident.
func (t *Tokens) IssueConnectionToken(residentID, passport, residentType string) (string, error) {
	now := time.Now()
	claims := ConnectionClaims{
		ResidentID: residentID,
		PassportNo: passport,
		Type:       residentType,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.cfg.ConnectionTokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(t.cfg.JWTSecret))
}

// VerifyConnectionToken parses and validates a connection token,
// returning its claims.
func (t *Tokens) VerifyConnectionToken(raw string) (*ConnectionClaims, error) {
	claims := &ConnectionClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return []byte(t.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse connection token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid connection token")
	}
	if claims.ResidentID == "" {
		return nil, errors.New("connection token missing resident id")
	}
	return claims, nil
}

// IssueFeedbackToken mints a single-use token tied to one resident,
// attached to a reflection webhook. Satisfies internal/pain.Tokens.
func (t *Tokens) IssueFeedbackToken(residentID string) (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate feedback token: %w", err)
	}
	token := hex.EncodeToString(raw)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.feedback[token] = feedbackGrant{residentID: residentID, expiresAt: time.Now().Add(t.cfg.FeedbackTokenTTL)}
	return token, nil
}

// ConsumeFeedbackToken redeems a feedback token exactly once, returning
// the resident it was minted for.
func (t *Tokens) ConsumeFeedbackToken(token string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	grant, ok := t.feedback[token]
	if !ok {
		return "", errors.New("unknown feedback token")
	}
	if grant.consumed {
		return "", errors.New("feedback token already used")
	}
	if time.Now().After(grant.expiresAt) {
		delete(t.feedback, token)
		return "", errors.New("feedback token expired")
	}
	grant.consumed = true
	t.feedback[token] = grant
	return grant.residentID, nil
}

// GCFeedbackTokens drops expired and consumed tokens. Called
// periodically off the hot path.
func (t *Tokens) GCFeedbackTokens() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	for token, grant := range t.feedback {
		if grant.consumed || now.After(grant.expiresAt) {
			delete(t.feedback, token)
		}
	}
}

// HashRegistrationToken produces a bcrypt hash of the configured
// registration secret, stored alongside the config for comparison.
func HashRegistrationToken(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash registration token: %w", err)
	}
	return string(hash), nil
}

// ValidateRegistrationToken reports whether the presented plaintext
// token matches the configured hash.
func ValidateRegistrationToken(hash, presented string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(presented)) == nil
}
