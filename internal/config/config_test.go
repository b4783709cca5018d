package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func setRequired(t *testing.T) {
	t.Helper()
	os.Clearenv()
	os.Setenv("JWT_SECRET", testSecret)
	os.Setenv("REFRESH_HMAC_SECRET", "refresh-hmac-secret")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load returned nil config")
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8080")
	}
	if cfg.JWTIssuer != "auth" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "auth")
	}
	if cfg.JWTAccessTTL != "15m" {
		t.Errorf("JWTAccessTTL = %q, want %q", cfg.JWTAccessTTL, "15m")
	}
	if cfg.RefreshTTL != "720h" {
		t.Errorf("RefreshTTL = %q, want %q", cfg.RefreshTTL, "720h")
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("BcryptCost = %d, want 12", cfg.BcryptCost)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("RedisAddr = %q, want default", cfg.RedisAddr)
	}
	if cfg.VerifyCodeTTL != "15m" || cfg.ResetCodeTTL != "10m" {
		t.Errorf("code TTLs = %q/%q, want 15m/10m", cfg.VerifyCodeTTL, cfg.ResetCodeTTL)
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	setRequired(t)
	os.Setenv("HTTP_ADDR", ":9090")
	os.Setenv("JWT_ISSUER", "custom-issuer")
	os.Setenv("BCRYPT_COST", "14")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":9090")
	}
	if cfg.JWTIssuer != "custom-issuer" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "custom-issuer")
	}
	if cfg.BcryptCost != 14 {
		t.Errorf("BcryptCost = %d, want 14", cfg.BcryptCost)
	}
}

func TestLoad_MissingSecrets(t *testing.T) {
	os.Clearenv()
	if _, err := Load(); err == nil {
		t.Fatal("Load should fail without JWT_SECRET")
	}

	os.Setenv("JWT_SECRET", testSecret)
	_, err := Load()
	if err == nil {
		t.Fatal("Load should fail without REFRESH_HMAC_SECRET")
	}
	if !strings.Contains(err.Error(), "REFRESH_HMAC_SECRET") {
		t.Errorf("error = %v, want mention of REFRESH_HMAC_SECRET", err)
	}
}

func TestLoad_ShortJWTSecret(t *testing.T) {
	os.Clearenv()
	os.Setenv("JWT_SECRET", "too-short")
	os.Setenv("REFRESH_HMAC_SECRET", "refresh-hmac-secret")

	if _, err := Load(); err == nil {
		t.Fatal("Load should reject a JWT secret shorter than 32 bytes")
	}
}

func TestLoad_InvalidBcryptCost(t *testing.T) {
	setRequired(t)
	os.Setenv("BCRYPT_COST", "99")

	if _, err := Load(); err == nil {
		t.Fatal("Load should reject BCRYPT_COST outside 4-31")
	}
}

func TestTTLAccessors(t *testing.T) {
	setRequired(t)
	os.Setenv("JWT_ACCESS_TTL", "5m")
	os.Setenv("REFRESH_TTL", "48h")
	os.Setenv("VERIFY_CODE_TTL", "20m")
	os.Setenv("RESET_CODE_TTL", "5m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.AccessTTL(); got != 5*time.Minute {
		t.Errorf("AccessTTL = %v, want 5m", got)
	}
	if got := cfg.RefreshHorizon(); got != 48*time.Hour {
		t.Errorf("RefreshHorizon = %v, want 48h", got)
	}
	if got := cfg.VerifyTTL(); got != 20*time.Minute {
		t.Errorf("VerifyTTL = %v, want 20m", got)
	}
	if got := cfg.ResetTTL(); got != 5*time.Minute {
		t.Errorf("ResetTTL = %v, want 5m", got)
	}
}

func TestTTLAccessors_InvalidFallsBack(t *testing.T) {
	setRequired(t)
	os.Setenv("JWT_ACCESS_TTL", "not-a-duration")
	os.Setenv("REFRESH_TTL", "-1h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.AccessTTL(); got != 15*time.Minute {
		t.Errorf("AccessTTL = %v, want fallback 15m", got)
	}
	if got := cfg.RefreshHorizon(); got != 720*time.Hour {
		t.Errorf("RefreshHorizon = %v, want fallback 720h", got)
	}
}
