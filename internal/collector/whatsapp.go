package collector

import (
	"context"
	"log/slog"
	"time"

	"github.com/emirlan/dailydigest/internal/message"
)

// WhatsAppCollector is a placeholder source that returns demo chat messages
// until a real WhatsApp integration exists.
type WhatsAppCollector struct {
	BaseCollector
	now func() time.Time
}

// NewWhatsAppCollector creates the placeholder WhatsApp collector.
func NewWhatsAppCollector() *WhatsAppCollector {
	return &WhatsAppCollector{
		BaseCollector: NewBaseCollector(message.SourceWhatsApp),
		now:           time.Now,
	}
}

func (w *WhatsAppCollector) Collect(_ context.Context) Result {
	slog.Info("WhatsApp collection using placeholder data")

	now := w.now()
	messages := []message.Message{
		message.New(w.Source(), "John Doe", "+1234567890",
			"Hey, can we reschedule our meeting?", now.Add(-2*time.Hour), message.TypeChat),
		message.New(w.Source(), "Jane Smith", "+0987654321",
			"Thanks for the update!", now.Add(-5*time.Hour), message.TypeChat),
	}

	slog.Info("Returning placeholder WhatsApp messages", "count", len(messages))
	return Result{Messages: messages}
}
