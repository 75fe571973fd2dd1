package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadOptions tells Load where to look.
//
// Path is an optional JSON/YAML config file. EnvFile is an optional dotenv file;
// a missing EnvFile is not an error. Lookup defaults to os.LookupEnv.
type LoadOptions struct {
	Path    string
	EnvFile string
	Lookup  func(key string) (string, bool)
}

// Load builds the process configuration.
//
// Precedence (lowest to highest): defaults, config file, EnvFile, process environment.
// The result is validated; callers must not mutate it.
func Load(opts LoadOptions) (*Config, error) {
	cfg := Defaults()

	if p := strings.TrimSpace(opts.Path); p != "" {
		if err := parseFile(p, cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", p, err)
		}
	}

	dotenv := map[string]string{}
	if p := strings.TrimSpace(opts.EnvFile); p != "" {
		m, err := godotenv.Read(p)
		switch {
		case err == nil:
			dotenv = m
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("env file %s: %w", p, err)
		}
	}

	lookup := opts.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	env := func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}

	if err := applyEnv(cfg, env); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	jb, err := fileJSON(path, b)
	if err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return err
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return fmt.Errorf("invalid config: trailing data")
		}
		return err
	}
	return nil
}

func applyEnv(cfg *Config, env func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := env(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		v, ok := env(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: not an integer: %q", key, v))
			return
		}
		*dst = n
	}
	flag := func(key string, dst *bool) {
		v, ok := env(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: not a boolean: %q", key, v))
			return
		}
		*dst = b
	}

	str("LOG_LEVEL", &cfg.Logging.Level)
	flag("LOG_CONSOLE", &cfg.Logging.Console)
	if v, ok := env("LOG_FILE"); ok && strings.TrimSpace(v) != "" {
		cfg.Logging.File.Enabled = true
		cfg.Logging.File.Path = strings.TrimSpace(v)
	}

	str("STORAGE_DRIVER", &cfg.Storage.Driver)
	str("STORAGE_PATH", &cfg.Storage.Path)
	str("DB_HOST", &cfg.Storage.Host)
	num("DB_PORT", &cfg.Storage.Port)
	str("DB_NAME", &cfg.Storage.Name)
	str("DB_USER", &cfg.Storage.User)
	if v, ok := env("DB_PASS"); ok {
		cfg.Storage.Password = v
	}
	str("DB_PARAMS", &cfg.Storage.Params)

	str("WEBHOOK_METHOD", &cfg.Webhook.Method)
	str("WEBHOOK_EVENT_TYPE", &cfg.Webhook.EventType)
	str("WEBHOOK_PATH", &cfg.Webhook.Path)
	str("HTTP_ADDR", &cfg.Server.Addr)

	str("TELEGRAM_BOT_TOKEN", &cfg.Telegram.Token)
	str("TELEGRAM_API_URL", &cfg.Telegram.APIURL)
	if v, ok := env("TELEGRAM_CHAT_ID"); ok && strings.TrimSpace(v) != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("TELEGRAM_CHAT_ID: not an integer: %q", v))
		} else {
			cfg.Telegram.ChatID = id
		}
	}

	num("NOTIFY_MAX_RETRIES", &cfg.Notify.MaxAttempts)
	if v, ok := env("NOTIFY_RETRY_INTERVAL"); ok && strings.TrimSpace(v) != "" {
		cfg.Notify.RetryInterval = secondsOrDuration(v)
	}

	num("RETENTION_DAYS", &cfg.Retention.Days)
	str("TIMEZONE", &cfg.Summary.Timezone)
	str("AMOUNT_ROUNDING", &cfg.Summary.Rounding)
	str("SCHEDULE", &cfg.Scheduler.Spec)
	flag("SCHEDULER_ENABLED", &cfg.Scheduler.Enabled)
	str("SCHEDULER_TIMEOUT", &cfg.Scheduler.Timeout)
	flag("SYSTEMD_NOTIFY", &cfg.Systemd.Notify)

	return errors.Join(errs...)
}
