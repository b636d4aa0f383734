// Package sdnotify reports run state to systemd (Type=notify units).
// Outside systemd every call is a no-op.
package sdnotify

import (
	"fmt"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier sends sd_notify messages. The zero value is usable.
type Notifier struct {
	// send is swapped in tests.
	send func(state string) (bool, error)
}

func New() *Notifier { return &Notifier{} }

func (n *Notifier) notify(state string) (bool, error) {
	if n != nil && n.send != nil {
		return n.send(state)
	}
	return daemon.SdNotify(false, state)
}

// Ready sends READY=1 with a human readable status line.
func (n *Notifier) Ready(status string) (bool, error) {
	return n.notify(daemon.SdNotifyReady + "\nSTATUS=" + status)
}

// Status updates the unit's STATUS= line.
func (n *Notifier) Status(format string, args ...any) (bool, error) {
	return n.notify("STATUS=" + fmt.Sprintf(format, args...))
}

// Stopping sends STOPPING=1.
func (n *Notifier) Stopping() (bool, error) {
	return n.notify(daemon.SdNotifyStopping)
}
