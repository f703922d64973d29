package health

import (
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// SystemdNotifier implements Notifier over sd_notify; when the process is
// not running under systemd (NOTIFY_SOCKET unset), every call is a no-op,
// matching the spec's "absent systemd, the operation is a no-op" rule.
type SystemdNotifier struct{}

func (SystemdNotifier) Notify(state string) error {
	_, err := daemon.SdNotify(false, state)
	return err
}

// NotifyReady signals systemd that startup has completed.
func (SystemdNotifier) NotifyReady() error {
	_, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	return err
}

// NotifyStopping signals systemd that graceful shutdown has begun.
func (SystemdNotifier) NotifyStopping() error {
	_, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	return err
}

// NotifyWatchdog sends a watchdog keepalive; the daemon loop calls this once
// per tick.
func (SystemdNotifier) NotifyWatchdog() error {
	_, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog)
	return err
}

// WatchdogEnabled reports the watchdog interval systemd expects, or zero if
// the watchdog is not configured.
func WatchdogEnabled() (time.Duration, error) {
	return daemon.SdWatchdogEnabled(false)
}
