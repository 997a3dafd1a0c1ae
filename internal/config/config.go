// Package config loads the evaluator's process configuration from the
// environment, grounded on the teacher's getEnv/getEnvInt fail-closed idiom
// in cmd/main.go — required secrets abort startup rather than fall back to
// an insecure default, per spec §6 ("exit 0 normal, non-zero on config errors").
package config

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/agentoauth/evaluator/internal/intent"
)

// Config is the evaluator's fully resolved runtime configuration.
type Config struct {
	Port string

	RPID               string
	SigningPrivateKey  ed25519.PrivateKey
	SigningKid         string
	AuditSalt          string
	IntentMode         intent.VerificationMode

	FreeTierDaily   int64
	FreeTierMonthly int64
	IPLimitMinute   int64
	IPLimitHour     int64

	StateBackendURL string
	JWKSURLs        []string

	LogLevel  string
	LogPretty bool

	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	CORSAllowedOrigins []string
}

// Load reads configuration from the environment, calling log.Fatal on any
// missing or malformed required value — config errors must prevent the
// process from starting, per spec §6.
func Load() Config {
	cfg := Config{
		Port: getEnv("PORT", "8080"),

		RPID:       mustGetEnv("RP_ID"),
		SigningKid: mustGetEnv("SIGNING_KID"),
		AuditSalt:  mustGetEnv("AUDIT_SALT"),
		IntentMode: intent.VerificationMode(getEnv("INTENT_VERIFICATION_MODE", string(intent.ModeStructural))),

		FreeTierDaily:   getEnvInt64("FREE_TIER_DAILY", 1000),
		FreeTierMonthly: getEnvInt64("FREE_TIER_MONTHLY", 10000),
		IPLimitMinute:   getEnvInt64("IP_LIMIT_MIN", 60),
		IPLimitHour:     getEnvInt64("IP_LIMIT_HOUR", 1000),

		StateBackendURL: os.Getenv("STATE_BACKEND_URL"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnv("LOG_PRETTY", "false") == "true",

		RequestTimeout:  getEnvDuration("REQUEST_TIMEOUT", 5*time.Second),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}

	if cfg.IntentMode != intent.ModeStrict && cfg.IntentMode != intent.ModeStructural {
		log.Fatalf("config: INTENT_VERIFICATION_MODE must be %q or %q, got %q",
			intent.ModeStrict, intent.ModeStructural, cfg.IntentMode)
	}

	if urls := os.Getenv("JWKS_URLS"); urls != "" {
		for _, u := range strings.Split(urls, ",") {
			u = strings.TrimSpace(u)
			if u != "" {
				cfg.JWKSURLs = append(cfg.JWKSURLs, u)
			}
		}
	}

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
			}
		}
	}

	rawKey := mustGetEnv("SIGNING_PRIVATE_KEY")
	keyBytes, err := hex.DecodeString(rawKey)
	if err != nil || len(keyBytes) != ed25519.PrivateKeySize {
		log.Fatal("config: SIGNING_PRIVATE_KEY must be a hex-encoded Ed25519 private key " +
			fmt.Sprintf("(%d bytes)", ed25519.PrivateKeySize))
	}
	cfg.SigningPrivateKey = ed25519.PrivateKey(keyBytes)

	return cfg
}

func mustGetEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("config: required environment variable %s is not set", key)
	}
	return v
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
