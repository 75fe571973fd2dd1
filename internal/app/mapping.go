package app

import (
	"fmt"
	"strings"
	"time"

	"paydigest/internal/config"
	"paydigest/internal/notifier"
	"paydigest/internal/scheduler"
	"paydigest/internal/server"
	"paydigest/internal/storage"
	"paydigest/internal/summary"
	"paydigest/internal/transport/telegram"
	"paydigest/internal/webhook"
	logx "paydigest/pkg/logx"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" {
		driver = config.DefaultDriver
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	connect, err := config.ParseDurationField("storage.connect_timeout", sc.ConnectTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	lifetime, err := config.ParseDurationField("storage.conn_max_lifetime", sc.ConnMaxLifetime)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:          driver,
		Path:            strings.TrimSpace(sc.Path),
		Host:            strings.TrimSpace(sc.Host),
		Port:            sc.Port,
		Name:            strings.TrimSpace(sc.Name),
		User:            sc.User,
		Password:        sc.Password,
		Params:          strings.TrimSpace(sc.Params),
		BusyTimeout:     busy,
		ConnectTimeout:  connect,
		MaxOpenConns:    sc.MaxOpenConns,
		ConnMaxLifetime: lifetime,
	}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	nc := notifier.DefaultConfig()
	if cfg.Notify.MaxAttempts > 0 {
		nc.MaxAttempts = cfg.Notify.MaxAttempts
	}
	// "0s" retries immediately; only an empty value takes the default.
	if strings.TrimSpace(cfg.Notify.RetryInterval) != "" {
		retry, err := config.ParseDurationField("notify.retry_interval", cfg.Notify.RetryInterval)
		if err != nil {
			return notifier.Config{}, err
		}
		nc.RetryInterval = retry
	}
	send, err := config.ParseDurationOrDefault("notify.send_timeout", cfg.Notify.SendTimeout, nc.SendTimeout)
	if err != nil {
		return notifier.Config{}, err
	}
	nc.SendTimeout = send
	return nc, nil
}

func mapTelegramConfig(cfg *config.Config) (telegram.Config, error) {
	timeout, err := config.ParseDurationOrDefault("telegram.timeout", cfg.Telegram.Timeout, 15*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:   strings.TrimSpace(cfg.Telegram.Token),
		ChatID:  cfg.Telegram.ChatID,
		APIURL:  strings.TrimSpace(cfg.Telegram.APIURL),
		Timeout: timeout,
	}, nil
}

func mapLocation(cfg *config.Config) (*time.Location, error) {
	tz := strings.TrimSpace(cfg.Summary.Timezone)
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("summary.timezone: %w", err)
	}
	return loc, nil
}

func mapSummaryConfig(cfg *config.Config) (summary.Config, error) {
	loc, err := mapLocation(cfg)
	if err != nil {
		return summary.Config{}, err
	}
	r, err := summary.ParseRounding(cfg.Summary.Rounding)
	if err != nil {
		return summary.Config{}, fmt.Errorf("summary.rounding: %w", err)
	}
	return summary.Config{Location: loc, Rounding: r}, nil
}

func mapWebhookConfig(cfg *config.Config) webhook.Config {
	return webhook.Config{
		Method:    cfg.Webhook.Method,
		EventType: cfg.Webhook.EventType,
	}
}

func mapRoutesConfig(cfg *config.Config) server.RoutesConfig {
	return server.RoutesConfig{
		WebhookPath:    strings.TrimSpace(cfg.Webhook.Path),
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		RatePerSec:     cfg.Server.RatePerSec,
		RateBurst:      cfg.Server.RateBurst,
		TrustedProxies: cfg.Server.TrustedProxies,
	}
}

func mapServerConfig(cfg *config.Config) (server.Config, error) {
	sc := cfg.Server
	read, err := config.ParseDurationField("server.read_timeout", sc.ReadTimeout)
	if err != nil {
		return server.Config{}, err
	}
	write, err := config.ParseDurationField("server.write_timeout", sc.WriteTimeout)
	if err != nil {
		return server.Config{}, err
	}
	idle, err := config.ParseDurationField("server.idle_timeout", sc.IdleTimeout)
	if err != nil {
		return server.Config{}, err
	}
	shutdown, err := config.ParseDurationField("server.shutdown_timeout", sc.ShutdownTimeout)
	if err != nil {
		return server.Config{}, err
	}
	return server.Config{
		Addr:            strings.TrimSpace(sc.Addr),
		ReadTimeout:     read,
		WriteTimeout:    write,
		IdleTimeout:     idle,
		ShutdownTimeout: shutdown,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	loc, err := mapLocation(cfg)
	if err != nil {
		return scheduler.Config{}, err
	}
	spec := strings.TrimSpace(cfg.Scheduler.Spec)
	if spec == "" {
		spec = config.DefaultSchedule
	}
	timeout, err := config.ParseDurationField("scheduler.timeout", cfg.Scheduler.Timeout)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{Spec: spec, Location: loc, Timeout: timeout}, nil
}
