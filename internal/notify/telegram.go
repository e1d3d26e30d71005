package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	circuit "github.com/rubyist/circuitbreaker"
)

// ErrBadRecipient is returned when the recipient is not a Telegram chat id.
var ErrBadRecipient = errors.New("recipient is not a telegram chat id")

// BotAPI is the part of *tgbotapi.BotAPI the sender uses.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSender sends notifications through a Telegram bot. Consecutive
// failures trip a breaker so a dead Bot API does not stall the queue.
type TelegramSender struct {
	bot     BotAPI
	breaker *circuit.Breaker
	timeout time.Duration
	logger  *zerolog.Logger
}

func NewTelegramSender(bot BotAPI, breakAfter int64, timeout time.Duration, logger *zerolog.Logger) *TelegramSender {
	if breakAfter <= 0 {
		breakAfter = 5
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &TelegramSender{
		bot:     bot,
		breaker: circuit.NewConsecutiveBreaker(breakAfter),
		timeout: timeout,
		logger:  logger,
	}
}

// NewBot connects to the Bot API with the configured token.
func NewBot(token string, debug bool) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	bot.Debug = debug
	return bot, nil
}

func (s *TelegramSender) Send(ctx context.Context, recipient, subject, body string) error {
	chatID, err := strconv.ParseInt(recipient, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrBadRecipient, recipient)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, formatMessage(subject, body))
	msg.ParseMode = tgbotapi.ModeMarkdown

	err = s.breaker.Call(func() error {
		_, sendErr := s.bot.Send(msg)
		return sendErr
	}, s.timeout)
	if errors.Is(err, circuit.ErrBreakerOpen) {
		s.logger.Warn().Int64("chat_id", chatID).Msg("telegram: breaker open, message skipped")
	}
	return err
}

// formatMessage renders a bold subject over the body. Both are escaped so
// user-supplied names cannot break Markdown parsing.
func formatMessage(subject, body string) string {
	title := "*" + tgbotapi.EscapeText(tgbotapi.ModeMarkdown, subject) + "*"
	if body == "" {
		return title
	}
	return title + "\n" + tgbotapi.EscapeText(tgbotapi.ModeMarkdown, body)
}
