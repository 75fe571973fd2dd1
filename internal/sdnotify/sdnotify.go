// Package sdnotify reports service state to systemd.
//
// Every call is a no-op outside a Type=notify unit (NOTIFY_SOCKET unset) or
// when disabled in config.
package sdnotify

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "paydigest/pkg/logx"
)

// HealthFunc gates watchdog pings. A failing check withholds the ping so
// systemd restarts the unit once WatchdogSec elapses.
type HealthFunc func(ctx context.Context) error

type Notifier struct {
	enabled bool
	log     logx.Logger

	notify   func(unsetEnv bool, state string) (bool, error)
	watchdog func(unsetEnv bool) (time.Duration, error)
}

func New(enabled bool, log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Notifier{
		enabled:  enabled,
		log:      log,
		notify:   daemon.SdNotify,
		watchdog: daemon.SdWatchdogEnabled,
	}
}

func (n *Notifier) Ready() { n.send(daemon.SdNotifyReady) }

func (n *Notifier) Stopping() { n.send(daemon.SdNotifyStopping) }

// Status sets the free-form line shown by `systemctl status`.
func (n *Notifier) Status(msg string) { n.send("STATUS=" + msg) }

func (n *Notifier) send(state string) {
	if n == nil || !n.enabled {
		return
	}
	sent, err := n.notify(false, state)
	if err != nil {
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		n.log.Debug("sd_notify", logx.String("state", state))
	}
}

// Watchdog pings systemd at half the configured WatchdogSec until ctx ends.
// It returns immediately when the unit has no watchdog.
func (n *Notifier) Watchdog(ctx context.Context, health HealthFunc) error {
	if n == nil || !n.enabled {
		return nil
	}
	every, err := n.watchdog(false)
	if err != nil {
		n.log.Warn("watchdog query failed", logx.Err(err))
		return nil
	}
	if every <= 0 {
		return nil
	}
	every /= 2
	n.log.Info("watchdog enabled", logx.Duration("interval", every))

	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		if health != nil {
			hctx, cancel := context.WithTimeout(ctx, every)
			herr := health(hctx)
			cancel()
			if herr != nil {
				n.log.Warn("watchdog ping withheld", logx.Err(herr))
				continue
			}
		}
		n.send(daemon.SdNotifyWatchdog)
	}
}
