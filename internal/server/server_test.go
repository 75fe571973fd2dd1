package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"paydigest/internal/payment"
	"paydigest/internal/webhook"
	logx "paydigest/pkg/logx"
)

type memStore struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (m *memStore) InsertPayment(ctx context.Context, ev payment.Event) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen == nil {
		m.seen = map[string]bool{}
	}
	if m.seen[ev.PaymentID] {
		return false, nil
	}
	m.seen[ev.PaymentID] = true
	return true, nil
}

const sale = `{"event_type":"PAYMENT.SALE.COMPLETED","resource":{"id":"PAY-1","state":"completed","amount":{"total":"10.00","currency":"USD"},"create_time":"2024-03-01T10:00:00Z"}}`

func newTestEngine(t *testing.T, cfg RoutesConfig, health HealthFunc) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	in := webhook.NewIngestor(webhook.Config{}, &memStore{}, logx.Nop())
	r, err := NewEngine(cfg, in, health, logx.Nop())
	require.NoError(t, err)
	return r
}

func do(r http.Handler, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestEngineWebhookRoute(t *testing.T) {
	r := newTestEngine(t, RoutesConfig{MaxBodyBytes: 1 << 20}, nil)

	w := do(r, http.MethodPost, "/webhook/paypal", sale, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, webhook.MsgRecorded, w.Body.String())

	w = do(r, http.MethodPost, "/webhook/paypal", sale, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, webhook.MsgDuplicate, w.Body.String())

	w = do(r, http.MethodGet, "/webhook/paypal", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "POST", w.Header().Get("Allow"))
}

func TestEngineCustomPath(t *testing.T) {
	r := newTestEngine(t, RoutesConfig{WebhookPath: "/hooks/pp"}, nil)

	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/hooks/pp", sale, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPost, "/webhook/paypal", sale, nil).Code)
}

func TestHealthz(t *testing.T) {
	healthy := true
	r := newTestEngine(t, RoutesConfig{}, func(ctx context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("db down")
	})

	w := do(r, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())

	healthy = false
	w = do(r, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRequestIDEchoedOrAssigned(t *testing.T) {
	r := newTestEngine(t, RoutesConfig{}, nil)

	w := do(r, http.MethodGet, "/healthz", "", map[string]string{requestIDHeader: "abc-123"})
	assert.Equal(t, "abc-123", w.Header().Get(requestIDHeader))

	w = do(r, http.MethodGet, "/healthz", "", nil)
	assert.Len(t, w.Header().Get(requestIDHeader), 36)
}

func TestRateLimitReturns429(t *testing.T) {
	r := newTestEngine(t, RoutesConfig{RatePerSec: 0.001, RateBurst: 2}, nil)

	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/webhook/paypal", sale, nil).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/webhook/paypal", sale, nil).Code)
	w := do(r, http.MethodPost, "/webhook/paypal", sale, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	// healthz is not limited
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/healthz", "", nil).Code)
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(1), 1, time.Minute)
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"))
	assert.Equal(t, 2, rl.Len())

	now = now.Add(2 * time.Minute)
	assert.True(t, rl.Allow("10.0.0.3"))
	assert.Equal(t, 1, rl.Len())
}

func TestRecoveryReturns500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recovery(logx.Nop()))
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	assert.Equal(t, http.StatusInternalServerError, do(r, http.MethodGet, "/panic", "", nil).Code)
}

func waitForHTTP(ctx context.Context, url string) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func TestServiceStartStop(t *testing.T) {
	r := newTestEngine(t, RoutesConfig{}, nil)
	svc := New(Config{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second}, r, logx.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, svc.Start(ctx))
	require.NoError(t, svc.Start(ctx))
	addr := svc.Addr()
	require.NotEmpty(t, addr)
	require.NoError(t, waitForHTTP(ctx, "http://"+addr+"/healthz"))

	resp, err := http.Post("http://"+addr+"/webhook/paypal", "application/json", strings.NewReader(sale))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, webhook.MsgRecorded, string(body))

	svc.Stop(ctx)
	assert.Empty(t, svc.Addr())
	assert.NoError(t, svc.Err())

	_, err = http.Get("http://" + addr + "/healthz")
	assert.Error(t, err)
}

func TestServiceStartBindError(t *testing.T) {
	busy := httptest.NewServer(http.NotFoundHandler())
	defer busy.Close()

	svc := New(Config{Addr: strings.TrimPrefix(busy.URL, "http://")}, http.NotFoundHandler(), logx.Nop())
	err := svc.Start(context.Background())
	require.Error(t, err)
	assert.Empty(t, svc.Addr())
	svc.Stop(context.Background())
}

func TestServiceStopBeforeStart(t *testing.T) {
	svc := New(Config{}, http.NotFoundHandler(), logx.Nop())
	svc.Stop(context.Background())
	assert.Empty(t, svc.Addr())
	select {
	case <-svc.Done():
	default:
		t.Fatal("Done should be closed when not running")
	}
}
