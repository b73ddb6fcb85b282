package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"golang.org/x/time/rate"

	"reporting-service/internal/logging"
	"reporting-service/internal/models"
	"reporting-service/internal/utils"
)

type telegramSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
}

// Telegram posts deviation and delay reports to the operations chat.
type Telegram struct {
	bot     telegramSender
	chatID  int64
	limiter *rate.Limiter
	logger  *logging.Logger
}

func NewTelegram(token string, chatID int64, ratePerSecond int, logger *logging.Logger) (*Telegram, error) {
	if token == "" || chatID == 0 {
		return nil, fmt.Errorf("telegram bot token and chat id are required")
	}
	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}
	return newTelegram(b, chatID, ratePerSecond, logger), nil
}

func newTelegram(sender telegramSender, chatID int64, ratePerSecond int, logger *logging.Logger) *Telegram {
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	return &Telegram{
		bot:     sender,
		chatID:  chatID,
		limiter: rate.NewLimiter(rate.Limit(float64(ratePerSecond)), ratePerSecond),
		logger:  logger,
	}
}

// Announce sends the report to the configured chat, retrying transient failures.
func (t *Telegram) Announce(ctx context.Context, report models.Report, msg models.Message) error {
	// Check rate limit
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit exceeded: %w", err)
	}

	params := &bot.SendMessageParams{
		ChatID:    t.chatID,
		Text:      formatTelegram(report, msg),
		ParseMode: tgmodels.ParseModeMarkdown,
	}

	// Retry sending message
	return utils.Retry(ctx, t.logger, 3, time.Second, nil, func() error {
		if _, err := t.bot.SendMessage(ctx, params); err != nil {
			return fmt.Errorf("failed to send Telegram message to chat_id %d: %w", t.chatID, err)
		}
		return nil
	})
}

func formatTelegram(report models.Report, msg models.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n%s\n\n", bot.EscapeMarkdown(msg.Title), bot.EscapeMarkdown(msg.Body))
	fmt.Fprintf(&b, "*Report:* %d\n", report.ID)
	if report.AffectedCorridorID != nil {
		fmt.Fprintf(&b, "*Corridor:* %d\n", *report.AffectedCorridorID)
	}
	if report.AffectedRouteID != nil {
		fmt.Fprintf(&b, "*Route:* %d\n", *report.AffectedRouteID)
	}
	if report.DelayMinutes != nil {
		fmt.Fprintf(&b, "*Delay:* %d min\n", *report.DelayMinutes)
	}
	fmt.Fprintf(&b, "*Emitter:* %d", report.EmitterUserID)
	return b.String()
}
