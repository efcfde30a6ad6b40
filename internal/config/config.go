package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const minSecretLength = 32

// Config holds the application configuration
type Config struct {
	Port     string
	DevMode  bool
	LogLevel string

	LoginBaseURL     string
	CredentialSecret string
	CredentialIssuer string
	RequestTTL       time.Duration
	CredentialTTL    time.Duration
	// EnforceSenderMatch requires the inbound sender to be the phone number the request was created for.
	EnforceSenderMatch bool
	SweepSchedule      string
	// WebhookTimeout bounds the processing of one webhook delivery, replies included.
	WebhookTimeout time.Duration

	WhatsApp WhatsAppConfig

	// DatabaseURL is optional; when set, verifications are written to the audit log.
	DatabaseURL string
}

// WhatsAppConfig holds the WhatsApp Cloud API settings
type WhatsAppConfig struct {
	AccessToken   string
	PhoneNumberID string
	VerifyToken   string
	APIURL        string
	APIVersion    string
	MaxRetries    uint64
	Timeout       time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:             "8080", // default port
		LogLevel:         "info",
		LoginBaseURL:     "https://yourapp.com/login",
		CredentialIssuer: "reverse-otp",
		SweepSchedule:    "@every 1m",
		WhatsApp: WhatsAppConfig{
			APIURL:     "https://graph.facebook.com",
			APIVersion: "v18.0",
		},
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	var err error
	if cfg.DevMode, err = boolEnv("DEV_MODE", false); err != nil {
		return nil, err
	}

	// Load CREDENTIAL_SECRET (required)
	secret := os.Getenv("CREDENTIAL_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("CREDENTIAL_SECRET environment variable is required")
	}
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("CREDENTIAL_SECRET must be at least %d bytes", minSecretLength)
	}
	cfg.CredentialSecret = secret

	if issuer := os.Getenv("CREDENTIAL_ISSUER"); issuer != "" {
		cfg.CredentialIssuer = issuer
	}

	if base := os.Getenv("LOGIN_BASE_URL"); base != "" {
		cfg.LoginBaseURL = base
	}
	if u, err := url.Parse(cfg.LoginBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("LOGIN_BASE_URL must be an absolute URL, got %q", cfg.LoginBaseURL)
	}

	if cfg.RequestTTL, err = durationEnv("REQUEST_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.CredentialTTL, err = durationEnv("CREDENTIAL_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.EnforceSenderMatch, err = boolEnv("ENFORCE_SENDER_MATCH", true); err != nil {
		return nil, err
	}
	if schedule := os.Getenv("SWEEP_SCHEDULE"); schedule != "" {
		cfg.SweepSchedule = schedule
	}
	if cfg.WebhookTimeout, err = durationEnv("WEBHOOK_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}

	// WhatsApp credentials are optional here; a missing pair is reported by the health probe.
	cfg.WhatsApp.AccessToken = os.Getenv("WHATSAPP_ACCESS_TOKEN")
	cfg.WhatsApp.PhoneNumberID = os.Getenv("WHATSAPP_PHONE_NUMBER_ID")
	cfg.WhatsApp.VerifyToken = os.Getenv("WHATSAPP_VERIFY_TOKEN")
	if apiURL := os.Getenv("WHATSAPP_API_URL"); apiURL != "" {
		cfg.WhatsApp.APIURL = strings.TrimRight(apiURL, "/")
	}
	if version := os.Getenv("WHATSAPP_API_VERSION"); version != "" {
		cfg.WhatsApp.APIVersion = version
	}
	if cfg.WhatsApp.MaxRetries, err = uintEnv("WHATSAPP_MAX_RETRIES", 3); err != nil {
		return nil, err
	}
	if cfg.WhatsApp.Timeout, err = durationEnv("WHATSAPP_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	return cfg, nil
}

func boolEnv(key string, def bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, raw)
	}
	return v, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, raw)
	}
	return v, nil
}

func uintEnv(key string, def uint64) (uint64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", key, raw)
	}
	return v, nil
}
