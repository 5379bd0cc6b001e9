package notify

import (
	"log/slog"

	"github.com/gen2brain/beeep"
)

// Desktop shows toast notifications through the platform notification
// service. Delivery failures are logged and otherwise ignored; notifications
// never affect the session lifecycle.
type Desktop struct {
	logger *slog.Logger
}

// NewDesktop creates a desktop notifier
func NewDesktop(logger *slog.Logger) *Desktop {
	return &Desktop{logger: logger}
}

// Notify shows a toast
func (d *Desktop) Notify(title, message string) {
	if err := beeep.Notify(title, message, ""); err != nil {
		d.logger.Debug("Notification delivery failed",
			slog.String("title", title),
			slog.String("error", err.Error()),
		)
	}
}

// Nop discards notifications. Used when notifications are disabled and in
// tests.
type Nop struct{}

// Notify discards the notification
func (Nop) Notify(title, message string) {}
