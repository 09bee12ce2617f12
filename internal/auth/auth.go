// Package auth provides bearer-token issuance and validation for the
// kernel's host HTTP API: JWT sign/validate, a revoked-token store, and a
// per-identity login rate limiter. Trimmed from the teacher's
// multi-user login/password database (InitUserDatabase et al.) down to
// the pieces the plugin kernel's additive HTTP surface actually needs.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

var (
	loginLimiters = newLoginLimiterStore(1, 5, 10*time.Minute)
	revokedTokens = newRevokedJWTStore(30 * time.Minute)
)

// revokedJWTStore is an amortized-GC set of revoked token hashes, keyed by
// sha256(token) rather than the raw token so a logged revocation can never
// leak a live bearer credential.
type revokedJWTStore struct {
	mu         sync.Mutex
	items      map[string]time.Time
	lastGC     time.Time
	gcInterval time.Duration
}

func newRevokedJWTStore(gcInterval time.Duration) *revokedJWTStore {
	return &revokedJWTStore{items: make(map[string]time.Time), lastGC: time.Now(), gcInterval: gcInterval}
}

func (s *revokedJWTStore) revoke(tokenHash string, expiresAt time.Time) {
	if tokenHash == "" {
		return
	}
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Sub(s.lastGC) >= s.gcInterval {
		for k, exp := range s.items {
			if !exp.After(now) {
				delete(s.items, k)
			}
		}
		s.lastGC = now
	}
	s.items[tokenHash] = expiresAt
}

func (s *revokedJWTStore) isRevoked(tokenHash string) bool {
	if tokenHash == "" {
		return false
	}
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.items[tokenHash]
	if !ok {
		return false
	}
	if !exp.After(now) {
		delete(s.items, tokenHash)
		return false
	}
	return true
}

func hashToken(tokenString string) string {
	if strings.TrimSpace(tokenString) == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(tokenString))
	return hex.EncodeToString(sum[:])
}

// loginLimiterStore keys one *rate.Limiter per caller identity (IP or
// subject), garbage-collecting idle entries so the map can't grow
// unbounded under credential-stuffing traffic.
type loginLimiterStore struct {
	mu         sync.Mutex
	limiters   map[string]*rate.Limiter
	lastSeen   map[string]time.Time
	r          rate.Limit
	burst      int
	maxIdle    time.Duration
	lastGC     time.Time
	gcInterval time.Duration
}

func newLoginLimiterStore(r rate.Limit, burst int, maxIdle time.Duration) *loginLimiterStore {
	return &loginLimiterStore{
		limiters:   make(map[string]*rate.Limiter),
		lastSeen:   make(map[string]time.Time),
		r:          r,
		burst:      burst,
		maxIdle:    maxIdle,
		gcInterval: 5 * time.Minute,
		lastGC:     time.Now(),
	}
}

func (s *loginLimiterStore) get(key string) *rate.Limiter {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastGC) >= s.gcInterval {
		for k, seen := range s.lastSeen {
			if now.Sub(seen) > s.maxIdle {
				delete(s.lastSeen, k)
				delete(s.limiters, k)
			}
		}
		s.lastGC = now
	}

	lim, ok := s.limiters[key]
	if !ok {
		lim = rate.NewLimiter(s.r, s.burst)
		s.limiters[key] = lim
	}
	s.lastSeen[key] = now
	return lim
}

// AllowLoginAttempt reports whether identity (typically a client IP) may
// attempt another token issuance right now.
func AllowLoginAttempt(identity string) bool {
	return loginLimiters.get(identity).Allow()
}

// HashPassword bcrypt-hashes a plaintext secret for comparison against a
// stored host-operator credential.
func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	return string(hash), err
}

// CheckPassword reports whether plain matches a bcrypt hash produced by
// HashPassword.
func CheckPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// IssueToken signs a bearer JWT for subject, valid for ttl.
func IssueToken(signingKey []byte, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(signingKey)
}

// ValidateToken parses and verifies a bearer JWT, rejecting it if it has
// been explicitly revoked.
func ValidateToken(signingKey []byte, tokenString string) (*jwt.RegisteredClaims, error) {
	if revokedTokens.isRevoked(hashToken(tokenString)) {
		return nil, fmt.Errorf("token has been revoked")
	}

	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		return signingKey, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// RevokeToken marks tokenString as unusable for the remainder of its
// natural lifetime.
func RevokeToken(tokenString string, expiresAt time.Time) {
	revokedTokens.revoke(hashToken(tokenString), expiresAt)
}
