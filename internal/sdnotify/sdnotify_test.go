package sdnotify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "paydigest/pkg/logx"
)

type recorder struct {
	mu     sync.Mutex
	states []string
}

func (r *recorder) notify(_ bool, state string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
	return true, nil
}

func (r *recorder) count(state string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.states {
		if s == state {
			n++
		}
	}
	return n
}

func newTest(enabled bool, every time.Duration) (*Notifier, *recorder) {
	rec := &recorder{}
	n := New(enabled, logx.Nop())
	n.notify = rec.notify
	n.watchdog = func(bool) (time.Duration, error) { return every, nil }
	return n, rec
}

func TestDisabledSendsNothing(t *testing.T) {
	n, rec := newTest(false, time.Second)
	n.Ready()
	n.Stopping()
	require.NoError(t, n.Watchdog(context.Background(), nil))
	assert.Empty(t, rec.states)
}

func TestReadyStoppingStatus(t *testing.T) {
	n, rec := newTest(true, 0)
	n.Ready()
	n.Status("listening on :8080")
	n.Stopping()
	assert.Equal(t, []string{"READY=1", "STATUS=listening on :8080", "STOPPING=1"}, rec.states)
}

func TestWatchdogDisabledReturns(t *testing.T) {
	n, _ := newTest(true, 0)
	done := make(chan struct{})
	go func() {
		_ = n.Watchdog(context.Background(), nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watchdog should return when WatchdogSec is unset")
	}
}

func TestWatchdogPingsUntilCancelled(t *testing.T) {
	n, rec := newTest(true, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = n.Watchdog(ctx, nil)
		close(done)
	}()

	require.Eventually(t, func() bool { return rec.count("WATCHDOG=1") >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestWatchdogWithheldWhenUnhealthy(t *testing.T) {
	n, rec := newTest(true, 20*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	var checks int
	var mu sync.Mutex
	_ = n.Watchdog(ctx, func(context.Context) error {
		mu.Lock()
		checks++
		mu.Unlock()
		return errors.New("db unreachable")
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Positive(t, checks)
	assert.Zero(t, rec.count("WATCHDOG=1"))
}
