package collector

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/emirlan/dailydigest/internal/config"
	"github.com/emirlan/dailydigest/internal/googleauth"
	"github.com/emirlan/dailydigest/internal/message"
	"github.com/emirlan/dailydigest/internal/retry"
)

const noSubject = "(No Subject)"

// GmailCollector implements the Collector interface for unread Gmail messages.
type GmailCollector struct {
	BaseCollector
	cfg        config.GmailConfig
	policy     retry.Policy
	now        func() time.Time
	newService func(ctx context.Context) (*gmail.Service, error)
}

// NewGmailCollector creates a new Gmail collector authenticated through the
// shared OAuth2 helper.
func NewGmailCollector(cfg config.GmailConfig) *GmailCollector {
	g := &GmailCollector{
		BaseCollector: NewBaseCollector(message.SourceGmail),
		cfg:           cfg,
		policy:        retry.DefaultPolicy,
		now:           time.Now,
	}
	g.newService = func(ctx context.Context) (*gmail.Service, error) {
		client, err := googleauth.GetOAuth2Client(ctx, cfg.CredentialsPath, cfg.TokenPath, gmail.GmailReadonlyScope)
		if err != nil {
			return nil, fmt.Errorf("failed to get Gmail OAuth2 client: %w", err)
		}
		return gmail.NewService(ctx, option.WithHTTPClient(client))
	}
	return g
}

func (g *GmailCollector) Collect(ctx context.Context) Result {
	slog.Info("Starting Gmail message collection")

	svc, err := g.newService(ctx)
	if err != nil {
		slog.Error("Gmail collection failed", "error", err)
		return Failed(fmt.Errorf("failed to create Gmail service: %w", err))
	}

	refs, err := g.listUnread(ctx, svc)
	if err != nil {
		slog.Error("Gmail collection failed", "error", err)
		return Failed(err)
	}
	slog.Info("Found unread emails", "count", len(refs))

	var messages []message.Message
	for _, ref := range refs {
		msg, err := g.getMessage(ctx, svc, ref.Id)
		if err != nil {
			slog.Warn("Failed to process Gmail message", "message_id", ref.Id, "error", err)
			continue
		}
		messages = append(messages, g.toMessage(msg))
	}

	slog.Info("Collected emails from Gmail", "count", len(messages))
	return Result{Messages: messages}
}

func (g *GmailCollector) listUnread(ctx context.Context, svc *gmail.Service) ([]*gmail.Message, error) {
	var resp *gmail.ListMessagesResponse
	err := retry.Do(ctx, g.policy, "gmail.messages.list", func() error {
		call := svc.Users.Messages.List("me").Q(g.cfg.Query).Context(ctx)
		if g.cfg.MaxResults > 0 {
			call = call.MaxResults(g.cfg.MaxResults)
		}
		var err error
		resp, err = call.Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list unread messages: %w", err)
	}
	return resp.Messages, nil
}

func (g *GmailCollector) getMessage(ctx context.Context, svc *gmail.Service, id string) (*gmail.Message, error) {
	var msg *gmail.Message
	err := retry.Do(ctx, g.policy, "gmail.messages.get", func() error {
		var err error
		msg, err = svc.Users.Messages.Get("me", id).
			Format("metadata").
			MetadataHeaders("From", "Subject", "Date").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return msg, nil
}

func (g *GmailCollector) toMessage(msg *gmail.Message) message.Message {
	var from, subject, date string
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch strings.ToLower(h.Name) {
			case "from":
				from = h.Value
			case "subject":
				subject = h.Value
			case "date":
				date = h.Value
			}
		}
	}

	name, addr := parseSender(from)
	if subject == "" {
		subject = noSubject
	}

	return message.New(g.Source(), name, addr, subject, g.timestamp(date, msg.InternalDate), message.TypeEmail)
}

// timestamp prefers the Date header, then Gmail's internal date, then now.
func (g *GmailCollector) timestamp(header string, internalDate int64) time.Time {
	if header != "" {
		if t, err := mail.ParseDate(header); err == nil {
			return t
		}
	}
	if internalDate > 0 {
		return time.UnixMilli(internalDate)
	}
	return g.now()
}

// parseSender splits a From header into display name and address. Either
// falls back to the other, and both fall back to "Unknown".
func parseSender(from string) (name, addr string) {
	from = strings.TrimSpace(from)
	if from == "" {
		return "Unknown", "Unknown"
	}

	parsed, err := mail.ParseAddress(from)
	if err != nil {
		return from, from
	}

	name, addr = parsed.Name, parsed.Address
	if name == "" {
		name = addr
	}
	return name, addr
}
