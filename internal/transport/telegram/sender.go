// Package telegram sends plain text messages to one chat through the Bot API.
package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	logx "paydigest/pkg/logx"
)

const textLimit = 4000

type Config struct {
	Token  string
	ChatID int64
	// APIURL overrides https://api.telegram.org (tests, local Bot API servers).
	APIURL  string
	Timeout time.Duration
}

// Sender implements notifier.Sender.
type Sender struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot
}

// New builds an offline bot: no getMe round trip until the first Send.
func New(cfg Config, log logx.Logger) (*Sender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat id is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/"),
		Token:   cfg.Token,
		Offline: true,
		Client:  &http.Client{Timeout: cfg.Timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Sender{cfg: cfg, log: log, bot: b}, nil
}

// Send posts text to the configured chat. It succeeds only when every chunk
// was acknowledged with ok=true.
//
// telebot has no context support; a cancelled ctx returns early while the
// in-flight request finishes within the client timeout.
func (s *Sender) Send(ctx context.Context, text string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	done := make(chan error, 1)
	go func() { done <- s.send(ctx, text) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sender) send(ctx context.Context, text string) error {
	chat := tele.ChatID(s.cfg.ChatID)
	for _, chunk := range splitText(text, textLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg, err := s.bot.Send(chat, chunk, &tele.SendOptions{DisableWebPagePreview: true})
		if err != nil {
			return err
		}
		s.log.Debug("telegram message sent", logx.Int("message_id", msg.ID))
	}
	return nil
}

// splitText cuts s into chunks of at most limit runes, preferring newlines.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}
		if end < len(rs) {
			for i := end - 1; i > start+limit/3; i-- {
				if rs[i] == '\n' {
					end = i + 1
					break
				}
			}
		}
		if chunk := strings.TrimRight(string(rs[start:end]), "\n"); chunk != "" {
			out = append(out, chunk)
		}
		start = end
	}
	return out
}
