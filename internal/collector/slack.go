package collector

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/emirlan/dailydigest/internal/config"
	"github.com/emirlan/dailydigest/internal/message"
	"github.com/emirlan/dailydigest/internal/retry"
)

const directMessageDetail = "Direct Message"

// SlackCollector implements the Collector interface for the Slack Web API.
type SlackCollector struct {
	BaseCollector
	cfg       config.SlackConfig
	api       *slack.Client
	policy    retry.Policy
	now       func() time.Time
}

// NewSlackCollector creates a new Slack collector. Extra options are passed
// to the Slack client.
func NewSlackCollector(cfg config.SlackConfig, opts ...slack.Option) *SlackCollector {
	return &SlackCollector{
		BaseCollector: NewBaseCollector(message.SourceSlack),
		cfg:           cfg,
		api:           slack.New(cfg.BotToken, opts...),
		policy:        retry.DefaultPolicy,
		now:           time.Now,
	}
}

func (s *SlackCollector) Collect(ctx context.Context) Result {
	slog.Info("Starting Slack message collection")

	conversations, err := s.conversations(ctx)
	if err != nil {
		slog.Error("Slack collection failed", "error", err)
		return Failed(err)
	}
	slog.Info("Found Slack conversations", "count", len(conversations))

	oldest := s.oldest()
	users := make(map[string]string)
	var messages []message.Message
	for _, conv := range conversations {
		history, err := s.history(ctx, conv.ID, oldest)
		if err != nil {
			slog.Warn("Failed to read Slack conversation", "channel", conv.Name, "error", err)
			continue
		}

		for _, msg := range history {
			// Skip bot messages and messages without text
			if msg.BotID != "" || msg.Text == "" || msg.User == "" {
				continue
			}

			ts, err := parseSlackTimestamp(msg.Timestamp)
			if err != nil {
				slog.Warn("Skipping Slack message with bad timestamp", "ts", msg.Timestamp, "error", err)
				continue
			}

			detail, typ := "#"+conv.Name, message.TypeChannel
			if conv.IsIM {
				detail, typ = directMessageDetail, message.TypeDirect
			}

			messages = append(messages, message.New(
				s.Source(),
				s.resolveUser(ctx, users, msg.User),
				detail,
				msg.Text,
				ts,
				typ,
			))
		}
	}

	slog.Info("Collected messages from Slack", "count", len(messages))
	return Result{Messages: messages}
}

func (s *SlackCollector) conversations(ctx context.Context) ([]slack.Channel, error) {
	var channels []slack.Channel
	err := retry.Do(ctx, s.policy, "slack.conversations.list", func() error {
		var err error
		channels, _, err = s.api.GetConversationsContext(ctx, &slack.GetConversationsParameters{
			Types:           []string{"public_channel", "private_channel", "im"},
			ExcludeArchived: true,
			Limit:           200,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return channels, nil
}

func (s *SlackCollector) history(ctx context.Context, channelID, oldest string) ([]slack.Message, error) {
	var resp *slack.GetConversationHistoryResponse
	err := retry.Do(ctx, s.policy, "slack.conversations.history", func() error {
		var err error
		resp, err = s.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
			ChannelID: channelID,
			Oldest:    oldest,
			Limit:     100,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read history of %s: %w", channelID, err)
	}
	return resp.Messages, nil
}

func (s *SlackCollector) oldest() string {
	if s.cfg.LookbackHours <= 0 {
		return "0"
	}
	since := s.now().Add(-time.Duration(s.cfg.LookbackHours) * time.Hour)
	return strconv.FormatInt(since.Unix(), 10)
}

// resolveUser looks up a display name, caching it in users for the rest of
// one collection.
func (s *SlackCollector) resolveUser(ctx context.Context, users map[string]string, userID string) string {
	if name, ok := users[userID]; ok {
		return name
	}

	user, err := s.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		slog.Warn("Failed to resolve Slack user", "user_id", userID, "error", err)
		return "Unknown"
	}

	name := user.RealName
	if name == "" {
		name = user.Name
	}
	if name == "" {
		name = "Unknown"
	}

	users[userID] = name
	return name
}

// parseSlackTimestamp converts a Slack "seconds.micros" ts into a time.
func parseSlackTimestamp(ts string) (time.Time, error) {
	secPart, fracPart, _ := strings.Cut(ts, ".")
	sec, err := strconv.ParseInt(secPart, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid slack timestamp %q: %w", ts, err)
	}

	var nsec int64
	if fracPart != "" {
		if len(fracPart) > 9 {
			fracPart = fracPart[:9]
		}
		fracPart += strings.Repeat("0", 9-len(fracPart))
		nsec, err = strconv.ParseInt(fracPart, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid slack timestamp %q: %w", ts, err)
		}
	}
	return time.Unix(sec, nsec), nil
}
