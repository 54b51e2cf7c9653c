package collector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emirlan/dailydigest/internal/config"
	"github.com/emirlan/dailydigest/internal/message"
)

func TestWhatsAppPlaceholder(t *testing.T) {
	now := time.Date(2024, 3, 5, 20, 0, 0, 0, time.UTC)
	w := NewWhatsAppCollector()
	w.now = func() time.Time { return now }

	assert.Equal(t, "whatsapp", w.Name())

	res := w.Collect(context.Background())
	require.NoError(t, res.Err)
	require.Len(t, res.Messages, 2)

	for _, m := range res.Messages {
		assert.Equal(t, message.SourceWhatsApp, m.Source)
		assert.Equal(t, message.TypeChat, m.Type)
		assert.NoError(t, m.Validate())
	}
	assert.Equal(t, now.Add(-2*time.Hour), res.Messages[0].Timestamp)
	assert.Equal(t, now.Add(-5*time.Hour), res.Messages[1].Timestamp)
}

func TestCollectorNames(t *testing.T) {
	collectors := []Collector{
		NewSlackCollector(config.SlackConfig{}),
		NewGmailCollector(config.GmailConfig{}),
		NewWhatsAppCollector(),
		NewTelegramCollector(config.TelegramConfig{}),
	}
	var names []string
	for _, c := range collectors {
		names = append(names, c.Name())
	}
	assert.Equal(t, []string{"slack", "gmail", "whatsapp", "telegram"}, names)
}
