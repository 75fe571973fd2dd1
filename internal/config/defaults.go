package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"paydigest/internal/scheduler"
	logx "paydigest/pkg/logx"
)

const (
	DefaultDriver        = "sqlite"
	DefaultSQLitePath    = "./data/payments.db"
	DefaultMethod        = "POST"
	DefaultEventType     = "PAYMENT.SALE.COMPLETED"
	DefaultWebhookPath   = "/webhook/paypal"
	DefaultAddr          = ":8080"
	DefaultMaxAttempts   = 3
	DefaultRetryInterval = "5s"
	DefaultRetentionDays = 730
	DefaultSchedule      = "5 0 * * *"
	DefaultTimezone      = "UTC"

	RoundingHalfUp  = "half_up"
	RoundingBankers = "bankers"
)

// Defaults returns a config with every default filled in.
func Defaults() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Console: true},
		Storage: StorageConfig{
			Driver:      DefaultDriver,
			Path:        DefaultSQLitePath,
			BusyTimeout: "5s",
		},
		Webhook: WebhookConfig{
			Method:    DefaultMethod,
			EventType: DefaultEventType,
			Path:      DefaultWebhookPath,
		},
		Server: ServerConfig{
			Addr:            DefaultAddr,
			ReadTimeout:     "10s",
			WriteTimeout:    "15s",
			IdleTimeout:     "60s",
			ShutdownTimeout: "10s",
			MaxBodyBytes:    1 << 20,
			RatePerSec:      5,
			RateBurst:       20,
		},
		Telegram: TelegramConfig{Timeout: "15s"},
		Notify: NotifyConfig{
			MaxAttempts:   DefaultMaxAttempts,
			RetryInterval: DefaultRetryInterval,
			SendTimeout:   "10s",
		},
		Summary:   SummaryConfig{Timezone: DefaultTimezone, Rounding: RoundingHalfUp},
		Retention: RetentionConfig{Days: DefaultRetentionDays},
		Scheduler: SchedulerConfig{Spec: DefaultSchedule},
		Systemd:   SystemdConfig{Notify: true},
	}
}

// Validate reports every problem found in cfg, joined.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if !logx.ValidLevel(cfg.Logging.Level) {
		add("logging.level: unknown level %q", cfg.Logging.Level)
	}

	st := cfg.Storage
	switch strings.ToLower(strings.TrimSpace(st.Driver)) {
	case "sqlite", "sqlite3":
		if strings.TrimSpace(st.Path) == "" {
			add("storage.path: required for sqlite")
		}
	case "mysql", "postgres", "postgresql", "pgx":
		if strings.TrimSpace(st.Name) == "" {
			add("storage.name: required for %s (DB_NAME)", st.Driver)
		}
		if strings.TrimSpace(st.Host) == "" {
			add("storage.host: required for %s (DB_HOST)", st.Driver)
		}
		if st.Port < 0 || st.Port > 65535 {
			add("storage.port: out of range: %d", st.Port)
		}
	default:
		add("storage.driver: unknown driver %q", st.Driver)
	}
	if st.MaxOpenConns < 0 {
		add("storage.max_open_conns: must be >= 0")
	}

	if strings.TrimSpace(cfg.Webhook.Method) == "" {
		add("webhook.method: required")
	}
	if strings.TrimSpace(cfg.Webhook.EventType) == "" {
		add("webhook.event_type: required")
	}
	if p := strings.TrimSpace(cfg.Webhook.Path); p == "" || !strings.HasPrefix(p, "/") {
		add("webhook.path: must start with '/'")
	}
	if cfg.Server.MaxBodyBytes < 0 {
		add("server.max_body_bytes: must be >= 0")
	}
	if cfg.Server.RateBurst < 0 {
		add("server.rate_burst: must be >= 0")
	}

	if cfg.Notify.MaxAttempts < 1 {
		add("notify.max_attempts: must be >= 1")
	}
	if cfg.Retention.Days <= 0 {
		add("retention.days: must be > 0")
	}

	if _, err := time.LoadLocation(strings.TrimSpace(cfg.Summary.Timezone)); err != nil {
		add("summary.timezone: %v", err)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Summary.Rounding)) {
	case "", RoundingHalfUp, RoundingBankers:
	default:
		add("summary.rounding: must be %q or %q", RoundingHalfUp, RoundingBankers)
	}

	if cfg.Scheduler.Enabled || strings.TrimSpace(cfg.Scheduler.Spec) != "" {
		if _, err := scheduler.Parser.Parse(strings.TrimSpace(cfg.Scheduler.Spec)); err != nil {
			add("scheduler.spec: %v", err)
		}
	}

	durations := map[string]string{
		"storage.busy_timeout":      st.BusyTimeout,
		"storage.connect_timeout":   st.ConnectTimeout,
		"storage.conn_max_lifetime": st.ConnMaxLifetime,
		"server.read_timeout":       cfg.Server.ReadTimeout,
		"server.write_timeout":      cfg.Server.WriteTimeout,
		"server.idle_timeout":       cfg.Server.IdleTimeout,
		"server.shutdown_timeout":   cfg.Server.ShutdownTimeout,
		"telegram.timeout":          cfg.Telegram.Timeout,
		"notify.retry_interval":     cfg.Notify.RetryInterval,
		"notify.send_timeout":       cfg.Notify.SendTimeout,
		"scheduler.timeout":         cfg.Scheduler.Timeout,
	}
	for path, raw := range durations {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// TelegramReady reports whether delivery can be attempted at all.
func (c *Config) TelegramReady() bool {
	return c != nil && strings.TrimSpace(c.Telegram.Token) != "" && c.Telegram.ChatID != 0
}
