package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"paydigest/internal/webhook"
	logx "paydigest/pkg/logx"
)

// RoutesConfig shapes the gin engine.
//
// RatePerSec <= 0 disables rate limiting on the webhook route.
type RoutesConfig struct {
	WebhookPath    string
	MaxBodyBytes   int64
	RatePerSec     float64
	RateBurst      int
	TrustedProxies []string
}

// HealthFunc reports whether dependencies are reachable.
type HealthFunc func(ctx context.Context) error

// NewEngine builds the router: the webhook route (all methods) and /healthz.
func NewEngine(cfg RoutesConfig, in *webhook.Ingestor, health HealthFunc, log logx.Logger) (*gin.Engine, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.WebhookPath == "" {
		cfg.WebhookPath = "/webhook/paypal"
	}

	r := gin.New()
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}
	r.Use(Recovery(log), RequestID(), AccessLog(log))

	hook := []gin.HandlerFunc{}
	if cfg.RatePerSec > 0 {
		hook = append(hook, RateLimit(NewRateLimiter(rate.Limit(cfg.RatePerSec), cfg.RateBurst, 10*time.Minute)))
	}
	hook = append(hook, webhook.Handler(in, cfg.MaxBodyBytes))
	r.Any(cfg.WebhookPath, hook...)

	r.GET("/healthz", func(c *gin.Context) {
		if health != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := health(ctx); err != nil {
				log.Warn("health check failed", logx.Err(err))
				c.String(http.StatusServiceUnavailable, "unavailable")
				return
			}
		}
		c.String(http.StatusOK, "ok")
	})
	return r, nil
}
