package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ReviewGuard/internal/config"
)

type mockBot struct {
	sent    []tgbotapi.MessageConfig
	failing map[string]bool
}

func (m *mockBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg, ok := c.(tgbotapi.MessageConfig)
	if !ok {
		return tgbotapi.Message{}, errors.New("unexpected chattable")
	}
	m.sent = append(m.sent, msg)
	if m.failing[msg.ParseMode] {
		return tgbotapi.Message{}, errors.New("bad request: can't parse entities")
	}
	return tgbotapi.Message{MessageID: len(m.sent)}, nil
}

func newTestNotifier(bot *mockBot, factoryCalls *int) *Notifier {
	return NewNotifier(config.TelegramConfig{BotToken: "token", ChatID: "-100123"},
		WithBotFactory(func(token string, _ *http.Client) (Bot, error) {
			*factoryCalls++
			if token != "token" {
				return nil, errors.New("wrong token")
			}
			return bot, nil
		}))
}

func TestPublishDigestFormatsHTML(t *testing.T) {
	t.Parallel()

	bot := &mockBot{}
	calls := 0
	n := newTestNotifier(bot, &calls)

	digest := "ReviewGuard flagged 1 of 2 new amazon units\n\n- FAKE (88%) R1\n<great> product & more"
	if err := n.PublishDigest(context.Background(), digest); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := n.PublishDigest(context.Background(), digest); err != nil {
		t.Fatalf("publish again: %v", err)
	}

	if calls != 1 {
		t.Fatalf("bot must be created once, got %d", calls)
	}
	if len(bot.sent) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(bot.sent))
	}
	msg := bot.sent[0]
	if msg.ChatID != -100123 || msg.ParseMode != tgbotapi.ModeHTML {
		t.Fatalf("unexpected message config %+v", msg)
	}
	if !strings.HasPrefix(msg.Text, "<b>ReviewGuard flagged 1 of 2 new amazon units</b>\n") {
		t.Fatalf("header not bold: %q", msg.Text)
	}
	if !strings.Contains(msg.Text, "&lt;great&gt; product &amp; more") {
		t.Fatalf("content not escaped: %q", msg.Text)
	}
}

func TestPublishDigestFallsBackToPlainText(t *testing.T) {
	t.Parallel()

	bot := &mockBot{failing: map[string]bool{tgbotapi.ModeHTML: true}}
	calls := 0
	n := newTestNotifier(bot, &calls)

	if err := n.PublishDigest(context.Background(), "header\nbody"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(bot.sent) != 2 {
		t.Fatalf("expected html attempt and plain retry, got %d", len(bot.sent))
	}
	if retry := bot.sent[1]; retry.ParseMode != "" || retry.Text != "header\nbody" {
		t.Fatalf("unexpected retry %+v", retry)
	}
}

func TestPublishDigestSplitsLongMessages(t *testing.T) {
	t.Parallel()

	bot := &mockBot{}
	calls := 0
	n := newTestNotifier(bot, &calls)

	line := strings.Repeat("x", 999)
	digest := strings.Join([]string{"head", line, line, line, line, line}, "\n")
	if err := n.PublishDigest(context.Background(), digest); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(bot.sent) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(bot.sent))
	}
	for _, msg := range bot.sent {
		if len(msg.Text) > maxMessageLen+len("<b></b>") {
			t.Fatalf("chunk too long: %d", len(msg.Text))
		}
	}
}

func TestPublishDigestMisconfigured(t *testing.T) {
	t.Parallel()

	n := NewNotifier(config.TelegramConfig{BotToken: "token"})
	if err := n.PublishDigest(context.Background(), "x"); !errors.Is(err, ErrMisconfigured) {
		t.Fatalf("expected ErrMisconfigured, got %v", err)
	}

	bad := NewNotifier(config.TelegramConfig{BotToken: "token", ChatID: "not-a-number"})
	if err := bad.PublishDigest(context.Background(), "x"); err == nil {
		t.Fatal("expected invalid chat id error")
	}
}

func TestSplitMessage(t *testing.T) {
	t.Parallel()

	if got := splitMessage("short", 10); len(got) != 1 || got[0] != "short" {
		t.Fatalf("unexpected split %q", got)
	}

	got := splitMessage("aaaa\nbbbb\ncccc", 10)
	if len(got) != 2 || got[0] != "aaaa\nbbbb" || got[1] != "cccc" {
		t.Fatalf("unexpected split %q", got)
	}

	got = splitMessage(strings.Repeat("é", 6), 5)
	for _, chunk := range got {
		if !strings.HasPrefix(chunk, "é") || len(chunk)%2 != 0 {
			t.Fatalf("chunk splits a rune: %q", got)
		}
	}
	if strings.Join(got, "") != strings.Repeat("é", 6) {
		t.Fatalf("content lost: %q", got)
	}
}
