package auth

import (
	"testing"

	"tracklnd/app/config"
)

func init() {
	config.AppConfig = &config.Config{JWTSecret: "test-secret"}
}

func TestJWTRoundTrip(t *testing.T) {
	token, err := GenerateJWT("user-1", "runner@example.com", "Test Runner", "admin")
	if err != nil {
		t.Fatalf("GenerateJWT failed: %v", err)
	}

	claims, err := ValidateJWT(token)
	if err != nil {
		t.Fatalf("ValidateJWT failed: %v", err)
	}
	if claims.UserID != "user-1" || claims.Email != "runner@example.com" || claims.Role != "admin" {
		t.Errorf("claims round-tripped wrong: %+v", claims)
	}
}

func TestValidateJWTRejectsTamperedToken(t *testing.T) {
	token, err := GenerateJWT("user-1", "runner@example.com", "Test Runner", "user")
	if err != nil {
		t.Fatalf("GenerateJWT failed: %v", err)
	}

	if _, err := ValidateJWT(token + "x"); err == nil {
		t.Error("expected error for tampered token")
	}
	if _, err := ValidateJWT("not-a-token"); err == nil {
		t.Error("expected error for garbage token")
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	if !CheckPasswordHash("correct horse battery staple", hash) {
		t.Error("correct password rejected")
	}
	if CheckPasswordHash("wrong password", hash) {
		t.Error("wrong password accepted")
	}
}
