package notifier

import (
	"fmt"
	"log/slog"

	"github.com/gregdel/pushover"

	"github.com/emirlan/dailydigest/internal/config"
)

// Alerter tells the operator that a digest run went wrong.
type Alerter interface {
	// Alert sends a short push notification.
	Alert(title, body string) error
}

// PushoverAlerter sends alerts via Pushover.
type PushoverAlerter struct {
	app       *pushover.Pushover
	recipient *pushover.Recipient
}

// NewPushoverAlerter creates a new Pushover alerter.
func NewPushoverAlerter(cfg config.PushoverConfig) *PushoverAlerter {
	return &PushoverAlerter{
		app:       pushover.New(cfg.AppToken),
		recipient: pushover.NewRecipient(cfg.UserToken),
	}
}

// Alert sends a high priority push notification.
func (p *PushoverAlerter) Alert(title, body string) error {
	notification := &pushover.Message{
		Title:    title,
		Message:  truncate(body, 500),
		Priority: pushover.PriorityHigh,
		Sound:    pushover.SoundPersistent,
	}

	response, err := p.app.SendMessage(notification, p.recipient)
	if err != nil {
		return fmt.Errorf("failed to send pushover notification: %w", err)
	}

	slog.Info("Pushover alert sent", "title", title, "status", response.Status)
	return nil
}

// LogAlerter is an alerter that just logs instead of sending.
type LogAlerter struct{}

func NewLogAlerter() *LogAlerter {
	return &LogAlerter{}
}

func (l *LogAlerter) Alert(title, body string) error {
	slog.Info("MOCK ALERT", "title", title, "body", truncate(body, 100))
	return nil
}

// truncate shortens s to at most maxLen runes, marking the cut with "...".
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
