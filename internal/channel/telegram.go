package channel

import (
	"context"
	"log/slog"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"hookchat/internal/config"
	"hookchat/internal/transport"
)

// telegramMessageLimit is Telegram's hard cap per message.
const telegramMessageLimit = 4096

// Telegram relays chat turns from a Telegram bot to the chat webhook.
// It is text-only: webhook replies come back as plain messages, and
// attachments are not forwarded.
type Telegram struct {
	bot       *tgbotapi.BotAPI
	allowFrom map[int64]bool
	client    *transport.Client
	webhooks  *config.WebhookStore
	logger    *slog.Logger
}

type TelegramOptions struct {
	Token     string
	AllowFrom []string // user IDs; empty means allow everyone
	Client    *transport.Client
	Webhooks  *config.WebhookStore
	Logger    *slog.Logger
}

func NewTelegram(opts TelegramOptions) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(opts.Token)
	if err != nil {
		return nil, err
	}

	allow := make(map[int64]bool, len(opts.AllowFrom))
	for _, s := range opts.AllowFrom {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			opts.Logger.Warn("ignoring invalid telegram user id", "value", s)
			continue
		}
		allow[id] = true
	}

	return &Telegram{
		bot:       bot,
		allowFrom: allow,
		client:    opts.Client,
		webhooks:  opts.Webhooks,
		logger:    opts.Logger,
	}, nil
}

func (t *Telegram) Name() string { return "telegram" }

// Start polls for updates until ctx is cancelled.
func (t *Telegram) Start(ctx context.Context) error {
	t.logger.Info("telegram channel started", "bot", t.bot.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			t.bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(ctx, update)
		}
	}
}

func (t *Telegram) Stop() error {
	t.bot.StopReceivingUpdates()
	return nil
}

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}
	msg := update.Message

	if len(t.allowFrom) > 0 && !t.allowFrom[msg.From.ID] {
		t.logger.Warn("telegram message from unauthorized user", "user_id", msg.From.ID)
		return
	}

	hooks := t.webhooks.Load(ctx)
	reply, err := t.client.SubmitChatTurn(ctx, hooks.ChatURL, msg.Text, nil)
	if err != nil {
		reply = errorContent(err)
	}
	if reply == "" {
		return
	}

	for _, chunk := range splitMessage(reply, telegramMessageLimit) {
		out := tgbotapi.NewMessage(msg.Chat.ID, chunk)
		out.ReplyToMessageID = msg.MessageID
		if _, err := t.bot.Send(out); err != nil {
			t.logger.Error("telegram send failed", "chat_id", msg.Chat.ID, "err", err)
			return
		}
	}
}

// splitMessage breaks text into chunks of at most limit bytes, preferring
// newline boundaries so replies stay readable.
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(text) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if text[i-1] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	if len(text) > 0 {
		chunks = append(chunks, text)
	}
	return chunks
}
