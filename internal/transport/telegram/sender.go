// Package telegram adapts the delivery pipeline's Sender interface to the
// Telegram Bot API. Sends pass through a circuit breaker so a Telegram outage
// fails jobs fast instead of hammering a dead endpoint; failed jobs stay in
// the outbox and are visible for retry.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sony/gobreaker/v2"

	"courseflow/internal/types"
)

// botAPI is the slice of tgbotapi.BotAPI the sender uses. Narrowed for
// testing.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetMe() (tgbotapi.User, error)
}

// Sender implements types.Sender and types.LinkBuilder over the Telegram Bot
// API.
type Sender struct {
	api      botAPI
	breaker  *gobreaker.CircuitBreaker[tgbotapi.Message]
	username string
	logger   *slog.Logger
}

// New creates a Sender from a bot token. sendTimeout bounds each API call at
// the HTTP layer since the underlying client has no context plumbing. The bot
// username for deep links is resolved once at startup; if the lookup fails,
// reminders simply go out without deep-link buttons.
func New(token string, sendTimeout time.Duration, logger *slog.Logger) (*Sender, error) {
	botapi, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{Timeout: sendTimeout})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamTransport, "failed to initialize bot api", err)
	}
	return NewWithAPI(botapi, logger), nil
}

// NewWithAPI creates a Sender over a prebuilt API client.
func NewWithAPI(botapi botAPI, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	cb := gobreaker.NewCircuitBreaker[tgbotapi.Message](gobreaker.Settings{
		Name:        "telegram",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	s := &Sender{
		api:     botapi,
		breaker: cb,
		logger:  logger,
	}
	if me, err := botapi.GetMe(); err == nil {
		s.username = me.UserName
	} else {
		logger.Warn("failed to resolve bot username, deep links disabled", "error", err)
	}
	return s
}

// SendText delivers a text message with optional inline actions.
func (s *Sender) SendText(ctx context.Context, userID int64, text string, actions [][]types.Action) error {
	msg := tgbotapi.NewMessage(userID, text)
	if kb := keyboard(actions); kb != nil {
		msg.ReplyMarkup = *kb
	}
	return s.send(ctx, msg)
}

// SendPhoto delivers a photo by its file reference with a caption and
// optional inline actions.
func (s *Sender) SendPhoto(ctx context.Context, userID int64, photoRef, caption string, actions [][]types.Action) error {
	msg := tgbotapi.NewPhoto(userID, tgbotapi.FileID(photoRef))
	msg.Caption = caption
	if kb := keyboard(actions); kb != nil {
		msg.ReplyMarkup = *kb
	}
	return s.send(ctx, msg)
}

// StartLink implements types.LinkBuilder. Returns "" when the bot username
// could not be resolved.
func (s *Sender) StartLink(payload string) string {
	if s.username == "" {
		return ""
	}
	return fmt.Sprintf("https://t.me/%s?start=%s", s.username, payload)
}

func (s *Sender) send(ctx context.Context, c tgbotapi.Chattable) error {
	// The underlying client has no context plumbing; honor cancellation at
	// the boundary.
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.breaker.Execute(func() (tgbotapi.Message, error) {
		return s.api.Send(c)
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamTransport, "telegram send failed", err)
	}
	return nil
}

func keyboard(actions [][]types.Action) *tgbotapi.InlineKeyboardMarkup {
	if len(actions) == 0 {
		return nil
	}
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, row := range actions {
		var buttons []tgbotapi.InlineKeyboardButton
		for _, a := range row {
			switch {
			case a.URL != "":
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(a.Label, a.URL))
			case a.CallbackData != "":
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(a.Label, a.CallbackData))
			}
		}
		if len(buttons) > 0 {
			rows = append(rows, buttons)
		}
	}
	if len(rows) == 0 {
		return nil
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &kb
}
