// Package notify tells reviewers about annotation activity.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"training-platform/internal/models"
)

// ErrCircuitOpen is returned while the breaker rejects deliveries after repeated failures.
var ErrCircuitOpen = errors.New("notification circuit breaker is open")

// Notifier is informed of lifecycle events. Delivery is best effort.
type Notifier interface {
	AnnotationSubmitted(ctx context.Context, a *models.Annotation, author string) error
	AnnotationReviewed(ctx context.Context, a *models.Annotation, reviewer string) error
}

// Nop discards every notification.
type Nop struct{}

func (Nop) AnnotationSubmitted(context.Context, *models.Annotation, string) error { return nil }
func (Nop) AnnotationReviewed(context.Context, *models.Annotation, string) error { return nil }

// Sender is the subset of the Telegram bot API used for delivery.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type BreakerConfig struct {
	MaxFailures uint32
	OpenTimeout time.Duration
}

// Telegram posts lifecycle events to reviewer chats.
type Telegram struct {
	sender  Sender
	chatIDs []int64
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewTelegramBot authorizes the bot token and returns a notifier using it.
func NewTelegramBot(token string, chatIDs []int64, cfg BreakerConfig, logger *zap.Logger) (*Telegram, error) {
	botAPI, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot API: %w", err)
	}
	logger.Info("Telegram bot authorized", zap.String("username", botAPI.Self.UserName))
	return NewTelegram(botAPI, chatIDs, cfg, logger), nil
}

func NewTelegram(sender Sender, chatIDs []int64, cfg BreakerConfig, logger *zap.Logger) *Telegram {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 3
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        "telegram-notify",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Notification breaker changed state",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &Telegram{
		sender:  sender,
		chatIDs: chatIDs,
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

func (t *Telegram) AnnotationSubmitted(ctx context.Context, a *models.Annotation, author string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "📝 New annotation #%d by %s awaits review\n", a.ID, author)
	fmt.Fprintf(&b, "Message: %s\n", a.MessageText)
	if intent := a.Intent(); intent != "" {
		fmt.Fprintf(&b, "Intent: %s", intent)
		if a.OriginalIntent != nil && *a.OriginalIntent != intent {
			fmt.Fprintf(&b, " (was %s)", *a.OriginalIntent)
		}
		b.WriteString("\n")
	}
	if len(a.CorrectedEntities) > 0 {
		fmt.Fprintf(&b, "Entities: %d", len(a.CorrectedEntities))
	}
	return t.broadcast(ctx, strings.TrimRight(b.String(), "\n"))
}

func (t *Telegram) AnnotationReviewed(ctx context.Context, a *models.Annotation, reviewer string) error {
	var text string
	switch a.Status {
	case models.StatusApproved:
		text = fmt.Sprintf("✅ Annotation #%d approved by %s", a.ID, reviewer)
	case models.StatusRejected:
		reason := ""
		if a.RejectionReason != nil {
			reason = *a.RejectionReason
		}
		text = fmt.Sprintf("❌ Annotation #%d rejected by %s: %s", a.ID, reviewer, reason)
	default:
		return nil
	}
	return t.broadcast(ctx, text)
}

func (t *Telegram) broadcast(ctx context.Context, text string) error {
	var errs []error
	for _, chatID := range t.chatIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		chatID := chatID
		_, err := t.breaker.Execute(func() (interface{}, error) {
			return t.sender.Send(tgbotapi.NewMessage(chatID, text))
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return ErrCircuitOpen
		}
		if err != nil {
			t.logger.Error("Failed to send Telegram notification", zap.Int64("chat_id", chatID), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
