package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/emirlan/dailydigest/internal/config"
	"github.com/emirlan/dailydigest/internal/digest"
	"github.com/emirlan/dailydigest/internal/retry"
)

// Sender delivers rendered digests.
type Sender interface {
	// Send mails the two renderings of a digest holding count messages.
	Send(ctx context.Context, plainText, html string, count int) error

	// SendError mails an error report for a failed run.
	SendError(ctx context.Context, runErr error) error
}

// SMTPSender delivers digests over SMTP.
type SMTPSender struct {
	cfg       config.SMTPConfig
	recipient string
	policy    retry.Policy
	now       func() time.Time
}

// NewSMTPSender creates a sender that mails recipient through cfg.
func NewSMTPSender(cfg config.SMTPConfig, recipient string) *SMTPSender {
	return &SMTPSender{
		cfg:       cfg,
		recipient: recipient,
		policy:    retry.Policy{MaxAttempts: 3, InitialInterval: 2 * time.Second, Multiplier: 2},
		now:       time.Now,
	}
}

// Subject is the subject line of a digest mail.
func Subject(now time.Time, count int) string {
	return fmt.Sprintf("%s - %s - %d notifications", digest.Title, digest.FormatDate(now), count)
}

// ErrorSubject is the subject line of an error report.
func ErrorSubject(now time.Time) string {
	return fmt.Sprintf("%s Error - %s", digest.Title, digest.FormatDate(now))
}

func (s *SMTPSender) Send(ctx context.Context, plainText, html string, count int) error {
	slog.Info("Sending digest email", "recipient", s.recipient, "count", count)

	msg, err := s.compose(Subject(s.now(), count), plainText, html)
	if err != nil {
		return err
	}
	if err := s.deliver(ctx, msg); err != nil {
		return fmt.Errorf("failed to send digest email: %w", err)
	}

	slog.Info("Digest email sent", "recipient", s.recipient)
	return nil
}

func (s *SMTPSender) SendError(ctx context.Context, runErr error) error {
	slog.Info("Sending error notification email", "recipient", s.recipient)

	plainText, html, err := RenderError(s.now(), runErr)
	if err != nil {
		return err
	}
	msg, err := s.compose(ErrorSubject(s.now()), plainText, html)
	if err != nil {
		return err
	}
	if err := s.deliver(ctx, msg); err != nil {
		return fmt.Errorf("failed to send error notification: %w", err)
	}

	slog.Info("Error notification sent")
	return nil
}

// SendTest mails a short message to check the SMTP credentials.
func (s *SMTPSender) SendTest(ctx context.Context) error {
	msg, err := s.compose("SMTP Test - Success!", "This is a test email from Daily Digest.", "<p>This is a test email from Daily Digest.</p>")
	if err != nil {
		return err
	}
	if err := s.deliver(ctx, msg); err != nil {
		return fmt.Errorf("failed to send test email: %w", err)
	}
	return nil
}

// CredentialIssues lists common mistakes in an SMTP configuration. App
// passwords issued by Gmail are 16 characters without spaces.
func CredentialIssues(cfg config.SMTPConfig) []string {
	var issues []string
	switch {
	case cfg.Password == "":
		issues = append(issues, "password is empty")
	case strings.Contains(cfg.Password, " "):
		issues = append(issues, "password contains spaces")
	case strings.HasSuffix(cfg.Host, "gmail.com") && len(cfg.Password) != 16:
		issues = append(issues, fmt.Sprintf("password length is %d, gmail app passwords have 16 characters", len(cfg.Password)))
	}
	if cfg.Username == "" {
		issues = append(issues, "username is empty")
	}
	return issues
}

// compose builds a multipart/alternative message with plain text first.
func (s *SMTPSender) compose(subject, plainText, html string) (*mail.Msg, error) {
	from := s.cfg.From
	if from == "" {
		from = s.cfg.Username
	}

	m := mail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("invalid sender address %q: %w", from, err)
	}
	if err := m.To(s.recipient); err != nil {
		return nil, fmt.Errorf("invalid recipient address %q: %w", s.recipient, err)
	}
	m.Subject(subject)
	m.SetDate()
	m.SetMessageID()
	m.SetBodyString(mail.TypeTextPlain, plainText)
	m.AddAlternativeString(mail.TypeTextHTML, html)
	return m, nil
}

func (s *SMTPSender) deliver(ctx context.Context, m *mail.Msg) error {
	client, err := s.client()
	if err != nil {
		return err
	}
	return retry.Do(ctx, s.policy, "smtp.send", func() error {
		return client.DialAndSendWithContext(ctx, m)
	})
}

func (s *SMTPSender) client() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.cfg.Username),
		mail.WithPassword(s.cfg.Password),
		mail.WithTimeout(30 * time.Second),
	}
	if s.cfg.UseTLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithSSL())
	}

	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}
	return client, nil
}

// RenderError builds the plain text and HTML bodies of an error report.
func RenderError(now time.Time, runErr error) (plainText, html string, err error) {
	data := struct {
		Title string
		Error string
		Time  string
	}{
		Title: digest.Title + " Error",
		Error: runErr.Error(),
		Time:  now.Format(time.RFC3339),
	}

	plainText = fmt.Sprintf("%s\n\nAn error occurred while generating your daily digest:\n\n%s\n\nPlease check the logs for more details.\n\nTime: %s\n",
		data.Title, data.Error, data.Time)

	var buf bytes.Buffer
	if err := errorTemplate.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("failed to render error report: %w", err)
	}
	return plainText, buf.String(), nil
}

var errorTemplate = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; padding: 20px; }
        .error-box { background-color: #fee; border: 2px solid #c00; padding: 20px; border-radius: 5px; }
        h1 { color: #c00; }
    </style>
</head>
<body>
    <div class="error-box">
        <h1>{{.Title}}</h1>
        <p>An error occurred while generating your daily digest:</p>
        <pre>{{.Error}}</pre>
        <p>Please check the logs for more details.</p>
        <p><small>Time: {{.Time}}</small></p>
    </div>
</body>
</html>
`))

// maxLogDeliveries bounds the history kept by a LogSender.
const maxLogDeliveries = 10

// LogSender logs digests instead of mailing them. It is safe for concurrent use.
type LogSender struct {
	mu   sync.Mutex
	sent []Delivery
}

// Delivery is one digest handed to a LogSender.
type Delivery struct {
	PlainText string
	HTML      string
	Count     int
}

func NewLogSender() *LogSender {
	return &LogSender{}
}

func (l *LogSender) Send(_ context.Context, plainText, html string, count int) error {
	l.mu.Lock()
	if len(l.sent) >= maxLogDeliveries {
		l.sent = l.sent[1:]
	}
	l.sent = append(l.sent, Delivery{PlainText: plainText, HTML: html, Count: count})
	l.mu.Unlock()

	slog.Info("MOCK DIGEST EMAIL",
		"count", count,
		"text_length", len(plainText),
		"html_length", len(html))
	return nil
}

// Deliveries returns the most recent digests passed to Send, oldest first.
func (l *LogSender) Deliveries() []Delivery {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.sent)
}

func (l *LogSender) SendError(_ context.Context, runErr error) error {
	slog.Info("MOCK ERROR EMAIL", "error", runErr)
	return nil
}
