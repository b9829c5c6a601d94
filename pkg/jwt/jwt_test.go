package jwt

import (
	"testing"
	"time"
)

func TestGenerateKeyPair(t *testing.T) {
	privateKeyPEM, publicKeyPEM, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}

	if privateKeyPEM == "" {
		t.Error("GenerateKeyPair() returned empty private key")
	}
	if publicKeyPEM == "" {
		t.Error("GenerateKeyPair() returned empty public key")
	}
}

func TestNewManagerInvalidKeys(t *testing.T) {
	tests := []struct {
		name          string
		privateKeyPEM string
		publicKeyPEM  string
		wantErr       bool
	}{
		{
			name:          "empty public key",
			privateKeyPEM: "whatever",
			publicKeyPEM:  "",
			wantErr:       true,
		},
		{
			name:          "garbage public key",
			privateKeyPEM: "",
			publicKeyPEM:  "not-a-valid-key",
			wantErr:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewManager(tt.privateKeyPEM, tt.publicKeyPEM, 15*time.Minute, 7*24*time.Hour)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewManager() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestVerifyOnlyManager(t *testing.T) {
	_, publicKeyPEM, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("Failed to generate key pair: %v", err)
	}

	manager, err := NewManager("", publicKeyPEM, 15*time.Minute, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	if _, err := manager.GenerateTokenPair("u1", "org-1", "s1", "a@b.com", ""); err == nil {
		t.Error("GenerateTokenPair() on a verify-only manager should fail")
	}
}

func TestGenerateAndValidate(t *testing.T) {
	manager := setupTestManager(t)

	tokenPair, err := manager.GenerateTokenPair("user-123", "org-456", "session-789", "test@example.com", "admin")
	if err != nil {
		t.Fatalf("GenerateTokenPair() error = %v", err)
	}
	if tokenPair.AccessToken == "" || tokenPair.RefreshToken == "" {
		t.Fatal("GenerateTokenPair() returned an empty token")
	}
	if tokenPair.AccessToken == tokenPair.RefreshToken {
		t.Error("Access and refresh tokens should be different")
	}

	claims, err := manager.ValidateToken(tokenPair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}

	if claims.UserID != "user-123" {
		t.Errorf("ValidateToken() UserID = %v, want user-123", claims.UserID)
	}
	if claims.OrgID != "org-456" {
		t.Errorf("ValidateToken() OrgID = %v, want org-456", claims.OrgID)
	}
	if claims.SystemRole != "admin" {
		t.Errorf("ValidateToken() SystemRole = %v, want admin", claims.SystemRole)
	}
	if claims.TokenType != "access" {
		t.Errorf("ValidateToken() TokenType = %v, want access", claims.TokenType)
	}
	if claims.ID == "" {
		t.Error("Claims.ID (JTI) is empty")
	}
}

func TestValidateInvalidToken(t *testing.T) {
	manager := setupTestManager(t)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty token", token: ""},
		{name: "malformed token", token: "not.a.valid.token"},
		{name: "random string", token: "random-string-not-jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := manager.ValidateToken(tt.token); err == nil {
				t.Error("ValidateToken() expected error, got nil")
			}
		})
	}
}

func TestValidateExpiredToken(t *testing.T) {
	privateKeyPEM, publicKeyPEM, _ := GenerateKeyPair()
	manager, err := NewManager(privateKeyPEM, publicKeyPEM, 1*time.Millisecond, 1*time.Millisecond)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	tokenPair, err := manager.GenerateTokenPair("user-123", "org-456", "session-789", "test@example.com", "")
	if err != nil {
		t.Fatalf("Failed to generate token pair: %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	if _, err := manager.ValidateToken(tokenPair.AccessToken); err != ErrTokenExpired {
		t.Errorf("ValidateToken() error = %v, want ErrTokenExpired", err)
	}
}

func setupTestManager(t *testing.T) *Manager {
	t.Helper()

	privateKeyPEM, publicKeyPEM, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("Failed to generate key pair: %v", err)
	}

	manager, err := NewManager(privateKeyPEM, publicKeyPEM, 15*time.Minute, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	return manager
}
