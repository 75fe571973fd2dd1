package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paydigest/internal/config"
	"paydigest/internal/payment"
	"paydigest/internal/storage"
	"paydigest/internal/summary"
	logx "paydigest/pkg/logx"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "payments.db")
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Systemd.Notify = false
	cfg.Notify.RetryInterval = "0s"
	return cfg
}

func saleFor(id string, at time.Time, amount string) string {
	return fmt.Sprintf(`{"event_type":"PAYMENT.SALE.COMPLETED","resource":{"id":%q,"state":"completed","amount":{"total":%q,"currency":"USD"},"create_time":%q}}`,
		id, amount, at.UTC().Format(time.RFC3339))
}

func post(t *testing.T, url, body string) (int, string) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

func telegramAPI(t *testing.T, ok bool) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"},"text":"x"}}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestServeLifecycle(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a, err := New(ctx, cfg, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, a.Start(ctx))

	base := "http://" + a.Addr()
	resp, err := http.Get(base + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	code, body := post(t, base+"/webhook/paypal", saleFor("PAY-1", time.Now(), "12.50"))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Payment recorded successfully", body)

	code, body = post(t, base+"/webhook/paypal", saleFor("PAY-1", time.Now(), "12.50"))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Payment already recorded", body)

	require.NoError(t, a.Stop(ctx, StopSIGTERM))
	assert.NoError(t, a.Err())
	select {
	case <-a.Done():
	default:
		t.Fatal("Done should be closed after Stop")
	}
}

func TestStartFailsWhenPortTaken(t *testing.T) {
	busy := httptest.NewServer(http.NotFoundHandler())
	defer busy.Close()

	cfg := testConfig(t)
	cfg.Server.Addr = strings.TrimPrefix(busy.URL, "http://")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a, err := New(ctx, cfg, logx.Nop())
	require.NoError(t, err)
	err = a.Start(ctx)
	require.Error(t, err)
	_ = a.Stop(context.Background(), StopFatalError)
}

func TestRunDailySendsYesterday(t *testing.T) {
	api, calls := telegramAPI(t, true)
	cfg := testConfig(t)
	cfg.Telegram.Token = "123:abc"
	cfg.Telegram.ChatID = 42
	cfg.Telegram.APIURL = api.URL

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	yesterday := summary.Yesterday(time.Now(), time.UTC).Add(12 * time.Hour)
	seed(t, cfg, yesterday, "PAY-1", "10.00")
	seed(t, cfg, yesterday, "PAY-2", "5.25")

	rep, err := RunDaily(ctx, cfg, logx.Nop())
	require.NoError(t, err)
	assert.Equal(t, summary.OutcomeSent, rep.Result.Outcome)
	assert.Equal(t, 2, rep.Result.Count)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
	assert.NotEmpty(t, rep.RunID)

	// Second run the same day is silent.
	rep, err = RunDaily(ctx, cfg, logx.Nop())
	require.NoError(t, err)
	assert.Equal(t, summary.OutcomeSkipped, rep.Result.Outcome)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))

	st := openTestStore(t, cfg)
	got, err := st.GetSummary(ctx, rep.Result.Day)
	require.NoError(t, err)
	assert.True(t, got.Sent())
	assert.Equal(t, "15.25", got.TotalAmount.StringFixed(2))
	assert.Contains(t, got.Message, "there were 2 PayPal transactions with a total income of USD 15.25.")
}

func TestRunDailyDeliveryFailureIsNotAnError(t *testing.T) {
	api, calls := telegramAPI(t, false)
	cfg := testConfig(t)
	cfg.Telegram.Token = "123:abc"
	cfg.Telegram.ChatID = 42
	cfg.Telegram.APIURL = api.URL
	cfg.Notify.MaxAttempts = 3

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rep, err := RunDaily(ctx, cfg, logx.Nop())
	require.NoError(t, err)
	assert.Equal(t, summary.OutcomeNotSent, rep.Result.Outcome)
	assert.Equal(t, 3, rep.Result.Delivery.Attempts)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))

	st := openTestStore(t, cfg)
	got, err := st.GetSummary(ctx, rep.Result.Day)
	require.NoError(t, err)
	assert.False(t, got.Sent())
	assert.Contains(t, got.Message, "ERROR PayPal transactions")
}

func TestRunDailyWithoutTelegramStoresSummary(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rep, err := RunDaily(ctx, cfg, logx.Nop())
	require.NoError(t, err)
	assert.Equal(t, summary.OutcomeNotSent, rep.Result.Outcome)
}

func TestRunDailyConnectionFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Driver = "postgres"
	cfg.Storage.Host = "127.0.0.1"
	cfg.Storage.Port = 1
	cfg.Storage.Name = "paydigest"
	cfg.Storage.ConnectTimeout = "500ms"

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := RunDaily(ctx, cfg, logx.Nop())
	require.Error(t, err)
}

func TestMapNotifierConfig(t *testing.T) {
	cfg := config.Defaults()
	nc, err := mapNotifierConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, 3, nc.MaxAttempts)
	assert.Equal(t, 5*time.Second, nc.RetryInterval)

	cfg.Notify.RetryInterval = "0s"
	nc, err = mapNotifierConfig(cfg)
	require.NoError(t, err)
	assert.Zero(t, nc.RetryInterval)

	cfg.Notify.RetryInterval = "soon"
	_, err = mapNotifierConfig(cfg)
	assert.Error(t, err)
}

func TestMapSummaryConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Summary.Timezone = "Asia/Jakarta"
	cfg.Summary.Rounding = "bankers"
	sc, err := mapSummaryConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "Asia/Jakarta", sc.Location.String())
	assert.Equal(t, summary.Bankers, sc.Rounding)

	cfg.Summary.Rounding = "ceil"
	_, err = mapSummaryConfig(cfg)
	assert.Error(t, err)
}

func TestMapSchedulerConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Summary.Timezone = "Asia/Jakarta"
	sc, err := mapSchedulerConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultSchedule, sc.Spec)
	assert.Equal(t, "Asia/Jakarta", sc.Location.String())
	assert.Zero(t, sc.Timeout, "daily run is unbounded unless configured")

	cfg.Scheduler.Timeout = "45m"
	sc, err = mapSchedulerConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, 45*time.Minute, sc.Timeout)

	cfg.Scheduler.Timeout = "later"
	_, err = mapSchedulerConfig(cfg)
	assert.Error(t, err)
}

func TestMapStorageConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Storage.Driver = " MySQL "
	cfg.Storage.ConnectTimeout = "3s"
	sc, err := mapStorageConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "mysql", sc.Driver)
	assert.Equal(t, 3*time.Second, sc.ConnectTimeout)
	assert.Equal(t, 5*time.Second, sc.BusyTimeout)
}

func seed(t *testing.T, cfg *config.Config, at time.Time, id, amount string) {
	t.Helper()
	st := openTestStore(t, cfg)
	ev := mustEvent(t, saleFor(id, at, amount))
	_, err := st.InsertPayment(context.Background(), ev)
	require.NoError(t, err)
}

func mustEvent(t *testing.T, body string) payment.Event {
	t.Helper()
	n, err := payment.Decode([]byte(body))
	require.NoError(t, err)
	ev, err := n.Event()
	require.NoError(t, err)
	return ev
}

func openTestStore(t *testing.T, cfg *config.Config) storage.Store {
	t.Helper()
	st, err := OpenStore(context.Background(), cfg, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}
