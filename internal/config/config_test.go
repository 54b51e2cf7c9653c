package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadYAML(t *testing.T) {
	t.Setenv("DIGEST_TEST_SLACK_TOKEN", "xoxb-from-env")
	path := writeConfig(t, `
recipient_email: me@example.com
slack:
  enabled: true
  bot_token: ${DIGEST_TEST_SLACK_TOKEN}
gmail:
  enabled: false
whatsapp:
  enabled: true
smtp:
  host: mail.example.com
  port: 465
  use_tls: false
collect:
  parallel: true
  timeout_seconds: 30
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "me@example.com", cfg.RecipientEmail)
	assert.Equal(t, "xoxb-from-env", cfg.Slack.BotToken)
	assert.Equal(t, 24, cfg.Slack.LookbackHours, "default kept")
	assert.False(t, cfg.Gmail.Enabled)
	assert.True(t, cfg.WhatsApp.Enabled)
	assert.Equal(t, "mail.example.com", cfg.SMTP.Host)
	assert.Equal(t, 465, cfg.SMTP.Port)
	assert.False(t, cfg.SMTP.UseTLS)
	assert.True(t, cfg.Collect.Parallel)
	assert.Equal(t, 30*time.Second, cfg.Collect.Timeout())
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "smtp:\n  username: file-user\n")
	t.Setenv("SMTP_USERNAME", "env-user")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("ENABLE_WHATSAPP_PLACEHOLDER", "true")
	t.Setenv("RECIPIENT_EMAIL", "env@example.com")
	t.Setenv("SCHEDULE_TIME", "07:30")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-user", cfg.SMTP.Username)
	assert.Equal(t, 2525, cfg.SMTP.Port)
	assert.True(t, cfg.WhatsApp.Enabled)
	assert.Equal(t, "env@example.com", cfg.RecipientEmail)
	assert.Equal(t, "07:30", cfg.Schedule.Time)
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "slack: [unclosed"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate(false))

	err := cfg.Validate(true)
	require.Error(t, err)
	assert.ErrorContains(t, err, "SMTP_USERNAME is required")
	assert.ErrorContains(t, err, "SMTP_PASSWORD is required")
	assert.ErrorContains(t, err, "RECIPIENT_EMAIL is required")

	cfg.SMTP.Username = "user"
	cfg.SMTP.Password = "secret"
	cfg.RecipientEmail = "me@example.com"
	require.NoError(t, cfg.Validate(true))

	cfg.Telegram.Enabled = true
	cfg.Schedule.Time = "8pm"
	err = cfg.Validate(true)
	assert.ErrorContains(t, err, "telegram")
	assert.ErrorContains(t, err, "invalid schedule time")
}

func TestScheduleSpec(t *testing.T) {
	spec, err := ScheduleConfig{Time: "20:00"}.Spec()
	require.NoError(t, err)
	assert.Equal(t, "0 20 * * *", spec)

	spec, err = ScheduleConfig{Time: "07:05"}.Spec()
	require.NoError(t, err)
	assert.Equal(t, "5 7 * * *", spec)

	spec, err = ScheduleConfig{Time: "07:05", Cron: "0 */6 * * *"}.Spec()
	require.NoError(t, err)
	assert.Equal(t, "0 */6 * * *", spec)

	_, err = ScheduleConfig{Time: "25:00"}.Spec()
	assert.Error(t, err)
}
