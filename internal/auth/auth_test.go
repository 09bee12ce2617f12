package auth

import (
	"testing"
	"time"
)

func TestIssueAndValidateToken(t *testing.T) {
	key := []byte("test-signing-key")
	token, err := IssueToken(key, "host-admin", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	claims, err := ValidateToken(key, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Subject != "host-admin" {
		t.Fatalf("expected subject host-admin, got %s", claims.Subject)
	}
}

func TestValidateRejectsRevokedToken(t *testing.T) {
	key := []byte("test-signing-key")
	token, _ := IssueToken(key, "host-admin", time.Hour)

	RevokeToken(token, time.Now().Add(time.Hour))

	if _, err := ValidateToken(key, token); err == nil {
		t.Fatal("expected revoked token to be rejected")
	}
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPassword(hash, "correct horse battery staple") {
		t.Fatal("expected matching password to verify")
	}
	if CheckPassword(hash, "wrong password") {
		t.Fatal("expected mismatched password to fail")
	}
}

func TestAllowLoginAttemptRateLimits(t *testing.T) {
	identity := "rate-limit-test-identity"
	allowed := 0
	for i := 0; i < 10; i++ {
		if AllowLoginAttempt(identity) {
			allowed++
		}
	}
	if allowed == 0 || allowed == 10 {
		t.Fatalf("expected partial throttling, got %d/10 allowed", allowed)
	}
}
