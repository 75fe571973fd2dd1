package config

// Config is the full process configuration.
//
// It is assembled once by Load (file, then .env, then the process environment)
// and treated as read-only afterwards. Components never see it directly; the
// app layer maps it into each component's own Config.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Webhook   WebhookConfig   `json:"webhook"`
	Server    ServerConfig    `json:"server"`
	Telegram  TelegramConfig  `json:"telegram"`
	Notify    NotifyConfig    `json:"notify"`
	Summary   SummaryConfig   `json:"summary"`
	Retention RetentionConfig `json:"retention"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Systemd   SystemdConfig   `json:"systemd"`
}

type LoggingConfig struct {
	Level   string            `json:"level"`
	Console bool              `json:"console"`
	File    LoggingFileConfig `json:"file"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects the database.
//
// Driver values:
//   - "sqlite": Path is the database file
//   - "mysql", "postgres": Host/Port/Name/User/Password
//
// Params is appended to the network DSN verbatim (e.g. "sslmode=disable").
type StorageConfig struct {
	Driver   string `json:"driver"`
	Path     string `json:"path,omitempty"`
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Name     string `json:"name,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
	Params   string `json:"params,omitempty"`

	BusyTimeout     string `json:"busy_timeout,omitempty"`
	ConnectTimeout  string `json:"connect_timeout,omitempty"`
	MaxOpenConns    int    `json:"max_open_conns,omitempty"`
	ConnMaxLifetime string `json:"conn_max_lifetime,omitempty"`
}

type WebhookConfig struct {
	Method    string `json:"method"`
	EventType string `json:"event_type"`
	Path      string `json:"path"`
}

// ServerConfig controls the webhook HTTP listener.
//
// RatePerSec <= 0 disables per-client rate limiting.
type ServerConfig struct {
	Addr            string   `json:"addr"`
	ReadTimeout     string   `json:"read_timeout,omitempty"`
	WriteTimeout    string   `json:"write_timeout,omitempty"`
	IdleTimeout     string   `json:"idle_timeout,omitempty"`
	ShutdownTimeout string   `json:"shutdown_timeout,omitempty"`
	MaxBodyBytes    int64    `json:"max_body_bytes,omitempty"`
	RatePerSec      float64  `json:"rate_per_sec,omitempty"`
	RateBurst       int      `json:"rate_burst,omitempty"`
	TrustedProxies  []string `json:"trusted_proxies,omitempty"`
}

type TelegramConfig struct {
	Token   string `json:"token"`
	ChatID  int64  `json:"chat_id"`
	APIURL  string `json:"api_url,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

// NotifyConfig controls summary delivery.
//
// Defaults:
//   - max_attempts: 3
//   - retry_interval: "5s" (fixed, no backoff)
//   - send_timeout: "10s"
type NotifyConfig struct {
	MaxAttempts   int    `json:"max_attempts"`
	RetryInterval string `json:"retry_interval"`
	SendTimeout   string `json:"send_timeout,omitempty"`
}

// SummaryConfig controls daily aggregation.
//
// Timezone decides where "yesterday" starts and ends.
// Rounding is "half_up" (default) or "bankers".
type SummaryConfig struct {
	Timezone string `json:"timezone"`
	Rounding string `json:"rounding"`
}

type RetentionConfig struct {
	Days int `json:"days"`
}

// SchedulerConfig enables the in-process daily trigger for `serve`.
// Spec accepts 5- or 6-field cron expressions and descriptors like "@daily".
// Timeout bounds one run; empty means the run is never cut short.
type SchedulerConfig struct {
	Enabled bool   `json:"enabled"`
	Spec    string `json:"spec"`
	Timeout string `json:"timeout"`
}

type SystemdConfig struct {
	Notify bool `json:"notify"`
}
