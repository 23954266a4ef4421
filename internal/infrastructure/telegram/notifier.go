package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ReviewGuard/internal/config"
	"ReviewGuard/internal/ports"
)

// Telegram rejects messages above 4096 characters.
const maxMessageLen = 4000

// ErrMisconfigured is returned when the bot token or chat id is missing.
var ErrMisconfigured = errors.New("telegram notifier misconfigured")

// Bot is the subset of the bot API the notifier uses.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// BotFactory creates the bot on first use.
type BotFactory func(token string, client *http.Client) (Bot, error)

func defaultBotFactory(token string, client *http.Client) (Bot, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, err
	}
	return bot, nil
}

// Option customises the notifier.
type Option func(*Notifier)

// WithBotFactory replaces the bot constructor.
func WithBotFactory(f BotFactory) Option {
	return func(n *Notifier) { n.factory = f }
}

// WithLogger sets the notifier logger.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Notifier) { n.logger = logger }
}

// Notifier sends digests to a Telegram chat via bot API.
type Notifier struct {
	botToken string
	chatID   string
	client   *http.Client
	factory  BotFactory
	logger   *slog.Logger

	mu  sync.Mutex
	bot Bot
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier. The bot API is not
// contacted until the first digest.
func NewNotifier(cfg config.TelegramConfig, opts ...Option) *Notifier {
	n := &Notifier{
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		client:   &http.Client{Timeout: 10 * time.Second},
		factory:  defaultBotFactory,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// PublishDigest posts the digest, split on line boundaries when it is long.
// The header line is sent in bold.
func (n *Notifier) PublishDigest(ctx context.Context, digest string) error {
	if n.botToken == "" || n.chatID == "" {
		return ErrMisconfigured
	}
	chatID, err := strconv.ParseInt(n.chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", n.chatID, err)
	}

	bot, err := n.ensureBot()
	if err != nil {
		return err
	}

	for i, chunk := range splitMessage(digest, maxMessageLen) {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg := tgbotapi.NewMessage(chatID, formatChunk(chunk, i == 0))
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true
		if _, err := bot.Send(msg); err != nil {
			n.logger.Debug("html send failed, retrying as plain text", "error", err)
			msg.ParseMode = ""
			msg.Text = chunk
			if _, err := bot.Send(msg); err != nil {
				return fmt.Errorf("send telegram message: %w", err)
			}
		}
	}
	return nil
}

func (n *Notifier) ensureBot() (Bot, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.bot != nil {
		return n.bot, nil
	}
	bot, err := n.factory(n.botToken, n.client)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	n.bot = bot
	return bot, nil
}

func formatChunk(chunk string, first bool) string {
	if !first {
		return html.EscapeString(chunk)
	}
	header, rest, found := strings.Cut(chunk, "\n")
	out := "<b>" + html.EscapeString(header) + "</b>"
	if found {
		out += "\n" + html.EscapeString(rest)
	}
	return out
}

// splitMessage cuts text into chunks of at most limit bytes, preferring the
// last newline before the limit.
func splitMessage(text string, limit int) []string {
	var chunks []string
	for len(text) > limit {
		cut := strings.LastIndex(text[:limit], "\n")
		if cut <= 0 {
			cut = limit
			for cut > 0 && !utf8Start(text[cut]) {
				cut--
			}
		}
		chunks = append(chunks, text[:cut])
		text = strings.TrimPrefix(text[cut:], "\n")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

func utf8Start(b byte) bool {
	return b&0xC0 != 0x80
}
