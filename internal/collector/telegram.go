package collector

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"

	"github.com/emirlan/dailydigest/internal/config"
	"github.com/emirlan/dailydigest/internal/message"
)

// TelegramCollector implements the Collector interface for a Telegram user
// account. It reports the latest message of every dialog with unread messages.
type TelegramCollector struct {
	BaseCollector
	cfg config.TelegramConfig
}

// NewTelegramCollector creates a new Telegram collector.
func NewTelegramCollector(cfg config.TelegramConfig) *TelegramCollector {
	return &TelegramCollector{
		BaseCollector: NewBaseCollector(message.SourceTelegram),
		cfg:           cfg,
	}
}

func (t *TelegramCollector) Collect(ctx context.Context) Result {
	slog.Info("Starting Telegram message collection")

	// Ensure data directory exists
	if err := os.MkdirAll(t.cfg.DataPath, 0o700); err != nil {
		slog.Error("Telegram collection failed", "error", err)
		return Failed(fmt.Errorf("failed to create data directory: %w", err))
	}

	client := telegram.NewClient(t.cfg.AppID, t.cfg.AppHash, telegram.Options{
		SessionStorage: &telegram.FileSessionStorage{
			Path: filepath.Join(t.cfg.DataPath, "session.json"),
		},
	})

	limit := t.cfg.MaxDialogs
	if limit <= 0 {
		limit = 50
	}

	var messages []message.Message
	err := client.Run(ctx, func(ctx context.Context) error {
		flow := auth.NewFlow(terminalAuth{phone: t.cfg.Phone}, auth.SendCodeOptions{})
		if err := client.Auth().IfNecessary(ctx, flow); err != nil {
			return fmt.Errorf("failed to authenticate: %w", err)
		}

		dialogs, err := client.API().MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
			OffsetPeer: &tg.InputPeerEmpty{},
			Limit:      limit,
		})
		if err != nil {
			return fmt.Errorf("failed to get dialogs: %w", err)
		}

		messages = unreadTelegramMessages(t.Source(), dialogs)
		return nil
	})
	if err != nil {
		slog.Error("Telegram collection failed", "error", err)
		return Failed(err)
	}

	slog.Info("Collected messages from Telegram", "count", len(messages))
	return Result{Messages: messages}
}

type telegramPeer struct {
	kind string
	id   int64
}

func peerOf(p tg.PeerClass) telegramPeer {
	switch p := p.(type) {
	case *tg.PeerUser:
		return telegramPeer{kind: "user", id: p.UserID}
	case *tg.PeerChat:
		return telegramPeer{kind: "chat", id: p.ChatID}
	case *tg.PeerChannel:
		return telegramPeer{kind: "channel", id: p.ChannelID}
	default:
		return telegramPeer{}
	}
}

type telegramMessageKey struct {
	peer telegramPeer
	id   int
}

// unreadTelegramMessages turns the top message of every unread dialog into a
// digest message. Dialog order is preserved.
func unreadTelegramMessages(src message.Source, dialogs tg.MessagesDialogsClass) []message.Message {
	var (
		ds    []tg.DialogClass
		msgs  []tg.MessageClass
		users []tg.UserClass
		chats []tg.ChatClass
	)
	switch d := dialogs.(type) {
	case *tg.MessagesDialogs:
		ds, msgs, users, chats = d.Dialogs, d.Messages, d.Users, d.Chats
	case *tg.MessagesDialogsSlice:
		ds, msgs, users, chats = d.Dialogs, d.Messages, d.Users, d.Chats
	default:
		return nil
	}

	usersByID := make(map[int64]*tg.User, len(users))
	for _, u := range users {
		if user, ok := u.(*tg.User); ok {
			usersByID[user.ID] = user
		}
	}

	titles := make(map[telegramPeer]string, len(chats))
	for _, c := range chats {
		switch c := c.(type) {
		case *tg.Chat:
			titles[telegramPeer{kind: "chat", id: c.ID}] = c.Title
		case *tg.Channel:
			titles[telegramPeer{kind: "channel", id: c.ID}] = c.Title
		}
	}

	byKey := make(map[telegramMessageKey]*tg.Message, len(msgs))
	for _, m := range msgs {
		if msg, ok := m.(*tg.Message); ok {
			byKey[telegramMessageKey{peer: peerOf(msg.PeerID), id: msg.ID}] = msg
		}
	}

	var out []message.Message
	for _, d := range ds {
		dialog, ok := d.(*tg.Dialog)
		if !ok || dialog.UnreadCount == 0 {
			continue
		}

		peer := peerOf(dialog.Peer)
		msg, ok := byKey[telegramMessageKey{peer: peer, id: dialog.TopMessage}]
		if !ok || msg.Out || msg.Message == "" {
			continue
		}

		var sender, detail string
		var typ message.Type
		switch peer.kind {
		case "user":
			user := usersByID[peer.id]
			sender = formatTelegramUser(user, peer.id)
			detail = telegramContact(user)
			typ = message.TypeDirect
		case "chat":
			detail = titles[peer]
			sender = messageAuthor(msg, usersByID, detail)
			typ = message.TypeChat
		case "channel":
			detail = titles[peer]
			sender = messageAuthor(msg, usersByID, detail)
			typ = message.TypeChannel
		default:
			continue
		}
		if detail == "" {
			detail = "Unknown chat"
		}

		content := msg.Message
		if dialog.UnreadCount > 1 {
			content = fmt.Sprintf("%s (+%d more unread)", content, dialog.UnreadCount-1)
		}

		out = append(out, message.New(src, sender, detail, content, time.Unix(int64(msg.Date), 0), typ))
	}
	return out
}

// messageAuthor names the user who posted msg, falling back to the chat title
// for anonymous or channel posts.
func messageAuthor(msg *tg.Message, users map[int64]*tg.User, fallback string) string {
	if peerUser, ok := msg.FromID.(*tg.PeerUser); ok {
		if user, ok := users[peerUser.UserID]; ok {
			return formatTelegramUser(user, peerUser.UserID)
		}
	}
	if fallback != "" {
		return fallback
	}
	return "Unknown"
}

func formatTelegramUser(user *tg.User, id int64) string {
	if user == nil {
		return fmt.Sprintf("User#%d", id)
	}
	if user.FirstName != "" {
		name := user.FirstName
		if user.LastName != "" {
			name += " " + user.LastName
		}
		return name
	}
	if user.Username != "" {
		return "@" + user.Username
	}
	return fmt.Sprintf("User#%d", user.ID)
}

func telegramContact(user *tg.User) string {
	switch {
	case user == nil:
		return directMessageDetail
	case user.Phone != "":
		return "+" + strings.TrimPrefix(user.Phone, "+")
	case user.Username != "":
		return "@" + user.Username
	default:
		return directMessageDetail
	}
}

// terminalAuth implements auth.UserAuthenticator for terminal-based auth.
type terminalAuth struct {
	phone string
}

func (a terminalAuth) Phone(_ context.Context) (string, error) {
	return a.phone, nil
}

func (a terminalAuth) Password(_ context.Context) (string, error) {
	fmt.Print("Enter 2FA password: ")
	return readLine()
}

func (a terminalAuth) Code(_ context.Context, _ *tg.AuthSentCode) (string, error) {
	fmt.Print("Enter Telegram code: ")
	return readLine()
}

func (a terminalAuth) SignUp(_ context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, fmt.Errorf("sign up not supported")
}

func (a terminalAuth) AcceptTermsOfService(_ context.Context, _ tg.HelpTermsOfService) error {
	return nil
}

func readLine() (string, error) {
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
