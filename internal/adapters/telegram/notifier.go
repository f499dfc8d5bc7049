package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"riskgate/internal/domain/alert"
	"riskgate/pkg/errors"
	"riskgate/pkg/logger"
)

// Compile-time check
var _ alert.Sink = (*Notifier)(nil)

// Sender is implemented by *tgbotapi.BotAPI
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Config contains Telegram notifier configuration
type Config struct {
	Token       string
	ChatIDs     []int64
	RatePerSec  int // default: 20, Telegram allows 30
	HTTPTimeout time.Duration
}

// NewBotAPI creates the Telegram API client
func NewBotAPI(cfg Config) (*tgbotapi.BotAPI, error) {
	if cfg.Token == "" {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "telegram bot token is required")
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}

	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, tgbotapi.APIEndpoint, &http.Client{Timeout: cfg.HTTPTimeout})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create telegram bot")
	}
	return api, nil
}

// Notifier posts risk alerts to the operations chats
type Notifier struct {
	sender  Sender
	chatIDs []int64
	limiter *rate.Limiter
	log     *logger.Logger
}

// NewNotifier creates an ops chat notifier
func NewNotifier(sender Sender, cfg Config, log *logger.Logger) *Notifier {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 20
	}
	return &Notifier{
		sender:  sender,
		chatIDs: cfg.ChatIDs,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		log:     log.With("component", "telegram_notifier"),
	}
}

// Deliver sends the alert to every configured chat. The first failure is
// returned after all chats were tried.
func (n *Notifier) Deliver(ctx context.Context, a alert.RiskAlert) error {
	text := Format(a, time.Now())

	var firstErr error
	for _, chatID := range n.chatIDs {
		if err := n.limiter.Wait(ctx); err != nil {
			return errors.Wrap(err, "telegram rate limiter")
		}

		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true

		if _, err := n.sender.Send(msg); err != nil {
			n.log.Warnw("Failed to send alert", "chat_id", chatID, "alert_id", a.ID, "error", err)
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "send to chat %d", chatID)
			}
		}
	}
	return firstErr
}

var severityIcon = map[alert.Severity]string{
	alert.SeverityLow:      "ℹ️",
	alert.SeverityMedium:   "⚠️",
	alert.SeverityHigh:     "🚫",
	alert.SeverityCritical: "🚨",
}

// Format renders an alert as an HTML Telegram message
func Format(a alert.RiskAlert, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>%s</b> [%s]\n", severityIcon[a.Severity], escape(string(a.AlertType)), strings.ToUpper(string(a.Severity)))
	fmt.Fprintf(&b, "%s\n", escape(a.Message))
	fmt.Fprintf(&b, "user: <code>%s</code>\n", a.UserID)
	if a.Symbol != "" {
		fmt.Fprintf(&b, "symbol: <code>%s</code>\n", escape(a.Symbol))
	}
	if !a.CurrentValue.IsZero() || !a.ThresholdValue.IsZero() {
		cur, _ := a.CurrentValue.Float64()
		thr, _ := a.ThresholdValue.Float64()
		fmt.Fprintf(&b, "value: %s / threshold: %s\n", humanize.CommafWithDigits(cur, 4), humanize.CommafWithDigits(thr, 4))
	}
	if !a.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "raised %s", humanize.RelTime(a.CreatedAt, now, "ago", "from now"))
	}
	return b.String()
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escape(s string) string {
	return htmlEscaper.Replace(s)
}
