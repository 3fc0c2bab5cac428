package notify

import (
	"context"
	"fmt"

	"github.com/gen2brain/beeep"
)

// Desktop shows signals as desktop notifications.
type Desktop struct {
	send func(title, message string) error
}

// NewDesktop creates a notifier backed by the platform notification service.
func NewDesktop() *Desktop {
	return &Desktop{
		send: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
	}
}

func (d *Desktop) Block(_ context.Context, s BlockSignal) error {
	name := s.AppName
	if name == "" {
		name = s.Package
	}
	if err := d.send(name, s.Reason); err != nil {
		return fmt.Errorf("desktop block notification: %w", err)
	}
	return nil
}

// Warn shows every warning it is given; the enforcer decides how often to warn.
func (d *Desktop) Warn(_ context.Context, s WarnSignal) error {
	if err := d.send(WarningTitle, s.Body()); err != nil {
		return fmt.Errorf("desktop warning notification: %w", err)
	}
	return nil
}
