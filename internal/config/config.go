// Package config loads the process-wide Setting record (spec.md §6
// persistence concerns plus the ambient proxy/selector/store wiring a
// complete deployment needs): selector policy, store backend choice,
// gateway base URL, callback pool sizing, and SMTP/Slack alerting.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Setting is the resolved process configuration, assembled from a .env
// file (if present, per joho/godotenv) and the process environment —
// environment variables always win.
type Setting struct {
	// Proxy surface.
	HTTPHost string
	HTTPPort int

	// Selector policy: one of best-wait-idle, random, weight, polling.
	SelectorPolicy string

	// Gateway.
	// GatewayBase is loaded but not passed to the gateway clients; the
	// registry always dials wss://gateway.discord.gg.
	GatewayBase string

	// Store backend: sqlite or postgres.
	StoreBackend string
	SQLitePath   string
	PostgresDSN  string

	// Redis, backing ban counters and the account snapshot cache.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Callback dispatcher.
	CallbackWorkers   int
	CallbackQueueSize int

	// SMTP alerting (spec.md §4.1 "notifies (email collaborator)").
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string
	AlertTo      string

	// Slack alerting, an additional channel the teacher's stack (and
	// zulandar-railyard's telegraph package) both exercise.
	SlackBotToken  string
	SlackChannelID string

	// Translation collaborator endpoint (spec.md §1 "translation
	// services" — named but unspecified). It is loaded but no other
	// package reads it; prompts are not translated.
	TranslateBaseURL string

	// Captcha/human-verification collaborator settings. They are loaded
	// but no other package reads them; nothing calls a captcha service
	// when an account is locked.
	CaptchaServerURL    string
	CaptchaServerSecret string
}

// Load reads .env (best-effort, matching the pack's "ignore missing
// file" convention) then resolves every Setting field from the
// environment, applying defaults for anything unset.
func Load() (*Setting, error) {
	_ = godotenv.Load()

	s := &Setting{
		HTTPHost:            getEnv("MJPROXY_HTTP_HOST", "0.0.0.0"),
		HTTPPort:            getEnvInt("MJPROXY_HTTP_PORT", 8080),
		SelectorPolicy:      getEnv("MJPROXY_SELECTOR_POLICY", "best-wait-idle"),
		GatewayBase:         getEnv("MJPROXY_GATEWAY_BASE", "wss://gateway.discord.gg"),
		StoreBackend:        getEnv("MJPROXY_STORE_BACKEND", "sqlite"),
		SQLitePath:          getEnv("MJPROXY_SQLITE_PATH", "mjproxy.db"),
		PostgresDSN:         getEnv("MJPROXY_POSTGRES_DSN", ""),
		RedisAddr:           getEnv("MJPROXY_REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:       getEnv("MJPROXY_REDIS_PASSWORD", ""),
		RedisDB:             getEnvInt("MJPROXY_REDIS_DB", 0),
		CallbackWorkers:     getEnvInt("MJPROXY_CALLBACK_WORKERS", 8),
		CallbackQueueSize:   getEnvInt("MJPROXY_CALLBACK_QUEUE_SIZE", 256),
		SMTPHost:            getEnv("MJPROXY_SMTP_HOST", ""),
		SMTPPort:            getEnvInt("MJPROXY_SMTP_PORT", 587),
		SMTPUser:            getEnv("MJPROXY_SMTP_USER", ""),
		SMTPPassword:        getEnv("MJPROXY_SMTP_PASSWORD", ""),
		SMTPFrom:            getEnv("MJPROXY_SMTP_FROM", ""),
		AlertTo:             getEnv("MJPROXY_ALERT_TO", ""),
		SlackBotToken:       getEnv("MJPROXY_SLACK_BOT_TOKEN", ""),
		SlackChannelID:      getEnv("MJPROXY_SLACK_CHANNEL_ID", ""),
		TranslateBaseURL:    getEnv("MJPROXY_TRANSLATE_BASE_URL", ""),
		CaptchaServerURL:    getEnv("MJPROXY_CAPTCHA_SERVER_URL", ""),
		CaptchaServerSecret: getEnv("MJPROXY_CAPTCHA_SERVER_SECRET", ""),
	}

	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Setting) validate() error {
	switch s.SelectorPolicy {
	case "best-wait-idle", "random", "weight", "polling":
	default:
		return fmt.Errorf("config: unknown selector policy %q", s.SelectorPolicy)
	}
	switch strings.ToLower(s.StoreBackend) {
	case "sqlite":
	case "postgres":
		if s.PostgresDSN == "" {
			return fmt.Errorf("config: MJPROXY_POSTGRES_DSN required when store backend is postgres")
		}
	default:
		return fmt.Errorf("config: unknown store backend %q", s.StoreBackend)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
