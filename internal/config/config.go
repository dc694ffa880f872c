package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config captures all runtime configuration for the campaign runner. Campaign
// content (subject, body, recipients, attachments) lives in a separate YAML
// definition; this struct holds the environment-supplied service settings.
type Config struct {
	App       AppConfig
	Transport TransportConfig
	Retry     RetryConfig
	Events    EventsConfig
}

// AppConfig contains generic application level settings.
type AppConfig struct {
	Env      string
	LogLevel string
}

// TransportConfig describes the mail relay endpoint and credentials. Mode
// selects the session implementation: "smtp" talks to a real relay while
// "mock" simulates delivery for dry runs.
type TransportConfig struct {
	Mode        string
	Host        string
	Port        int
	Username    string
	Password    string
	From        string
	UseStartTLS bool
}

// RetryConfig controls the per-recipient retry budget and the fixed pauses
// applied by the dispatch engine.
type RetryConfig struct {
	MaxAttempts         int
	RetryBackoffSeconds int
	SendPacingSeconds   int
}

// EventsConfig enables mirroring progress events to a Kafka topic. The Kafka
// sink is optional; it activates only when brokers are configured.
type EventsConfig struct {
	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads environment variables, applies defaults, validates required
// values and returns a populated Config instance.
func Load() (*Config, error) {
	_ = godotenv.Load()

	ldr := &envLoader{}

	cfg := &Config{}
	cfg.App.Env = ldr.getString("APP_ENV", "development", false)
	cfg.App.LogLevel = ldr.getString("LOG_LEVEL", "info", false)

	cfg.Transport.Mode = ldr.getString("TRANSPORT_MODE", "smtp", false)
	cfg.Transport.Host = ldr.getString("SMTP_HOST", "", true)
	cfg.Transport.Port = ldr.getInt("SMTP_PORT", 587, false)
	cfg.Transport.Username = ldr.getString("SMTP_USERNAME", "", true)
	cfg.Transport.Password = ldr.getString("SMTP_PASSWORD", "", true)
	cfg.Transport.From = ldr.getString("SMTP_FROM", "", false)
	cfg.Transport.UseStartTLS = ldr.getBool("SMTP_USE_STARTTLS", true, false)

	cfg.Retry.MaxAttempts = ldr.getInt("MAX_ATTEMPTS", 3, false)
	cfg.Retry.RetryBackoffSeconds = ldr.getInt("RETRY_BACKOFF_SECONDS", 2, false)
	cfg.Retry.SendPacingSeconds = ldr.getInt("SEND_PACING_SECONDS", 1, false)

	cfg.Events.KafkaBrokers = ldr.getStringSlice("KAFKA_BROKERS", false)
	cfg.Events.KafkaTopic = ldr.getString("KAFKA_PROGRESS_TOPIC", "campaign.progress", false)

	if cfg.Transport.From == "" {
		cfg.Transport.From = cfg.Transport.Username
	}
	if len(cfg.Events.KafkaBrokers) > 0 && cfg.Events.KafkaTopic == "" {
		ldr.addError("KAFKA_PROGRESS_TOPIC is required when KAFKA_BROKERS is set")
	}

	if err := ldr.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

type envLoader struct {
	errs []string
}

func (l *envLoader) validate() error {
	if len(l.errs) == 0 {
		return nil
	}
	return fmt.Errorf("config validation failed: %s", strings.Join(l.errs, "; "))
}

func (l *envLoader) addError(msg string) {
	l.errs = append(l.errs, msg)
}

func (l *envLoader) getString(key, def string, required bool) string {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		return val
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getInt(key string, def int, required bool) int {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		i, err := strconv.Atoi(val)
		if err != nil {
			l.addError(fmt.Sprintf("%s must be a valid integer", key))
			return def
		}
		return i
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getBool(key string, def bool, required bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		parsed, err := strconv.ParseBool(val)
		if err != nil {
			l.addError(fmt.Sprintf("%s must be a valid boolean", key))
			return def
		}
		return parsed
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getStringSlice(key string, required bool) []string {
	raw := l.getString(key, "", required)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	if required && len(out) == 0 {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return out
}
