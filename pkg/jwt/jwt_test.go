package jwt

import (
	"testing"
	"time"
)

const testSecret = "sync-admin-signing-secret-32char"

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken("admin", 15*time.Minute, testSecret)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	claims, err := ValidateToken(token, testSecret)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if claims.UserID != "admin" {
		t.Errorf("UserID = %q, want admin", claims.UserID)
	}
	if claims.TokenType != "access" {
		t.Errorf("TokenType = %q, want access", claims.TokenType)
	}
	if claims.Subject != "admin" {
		t.Errorf("Subject = %q, want admin", claims.Subject)
	}

	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining <= 0 || remaining > 15*time.Minute {
		t.Errorf("expiry %v out of range", remaining)
	}
}

func TestRefreshTokenType(t *testing.T) {
	token, err := GenerateRefreshToken("admin", 24*time.Hour, testSecret)
	if err != nil {
		t.Fatalf("GenerateRefreshToken() error = %v", err)
	}

	claims, err := ValidateToken(token, testSecret)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if claims.TokenType != "refresh" {
		t.Errorf("TokenType = %q, want refresh", claims.TokenType)
	}
}

func TestValidateTokenFailures(t *testing.T) {
	valid, err := GenerateToken("admin", time.Hour, testSecret)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	expired, err := GenerateToken("admin", -time.Minute, testSecret)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	tests := []struct {
		name   string
		token  string
		secret string
	}{
		{name: "expired token", token: expired, secret: testSecret},
		{name: "wrong secret", token: valid, secret: "some-other-signing-secret-32char"},
		{name: "garbage token", token: "not.a.token", secret: testSecret},
		{name: "empty token", token: "", secret: testSecret},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ValidateToken(tt.token, tt.secret); err == nil {
				t.Error("ValidateToken() expected error")
			}
		})
	}
}
