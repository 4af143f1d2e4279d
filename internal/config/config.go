package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBFile      string
	APIAddr     string
	BaseURL     string
	UploadsPath string
	TokenExpiry time.Duration
	CORSOrigins []string

	// Conversation timing knobs.
	DeliveryDelay time.Duration
	TypingTTL     time.Duration
	ConnectDelay  time.Duration
	RingTimeout   time.Duration

	// Web push is enabled only when both VAPID keys are present.
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	PushSubscriber  string
}

func Load() (*Config, error) {
	// A missing .env is fine, the environment wins either way.
	_ = godotenv.Load()

	cfg := &Config{
		DBFile:          getEnv("PARLEY_DB", "parley.db"),
		APIAddr:         getEnv("API_ADDR", ":8080"),
		BaseURL:         getEnv("BASE_URL", "http://localhost:8080"),
		UploadsPath:     getEnv("UPLOADS_PATH", "uploads"),
		VAPIDPublicKey:  os.Getenv("VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("VAPID_PRIVATE_KEY"),
		PushSubscriber:  getEnv("PUSH_SUBSCRIBER", "mailto:admin@localhost"),
	}

	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		for _, origin := range strings.Split(origins, ",") {
			cfg.CORSOrigins = append(cfg.CORSOrigins, strings.TrimSpace(origin))
		}
	}

	var err error
	if cfg.TokenExpiry, err = parseDuration("TOKEN_EXPIRY", "24h"); err != nil {
		return nil, err
	}
	if cfg.DeliveryDelay, err = parseDuration("DELIVERY_DELAY", "1s"); err != nil {
		return nil, err
	}
	if cfg.TypingTTL, err = parseDuration("TYPING_TTL", "3s"); err != nil {
		return nil, err
	}
	if cfg.ConnectDelay, err = parseDuration("CONNECT_DELAY", "3s"); err != nil {
		return nil, err
	}
	if cfg.RingTimeout, err = parseDuration("RING_TIMEOUT", "30s"); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.TokenExpiry <= 0 {
		return fmt.Errorf("TOKEN_EXPIRY must be greater than 0")
	}
	for name, d := range map[string]time.Duration{
		"DELIVERY_DELAY": c.DeliveryDelay,
		"TYPING_TTL":     c.TypingTTL,
		"CONNECT_DELAY":  c.ConnectDelay,
		"RING_TIMEOUT":   c.RingTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be greater than 0", name)
		}
	}

	if (c.VAPIDPublicKey == "") != (c.VAPIDPrivateKey == "") {
		return fmt.Errorf("VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY must be set together")
	}

	return nil
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
