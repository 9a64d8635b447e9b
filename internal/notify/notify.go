// Package notify queues client notifications in Redis. The Telegram bot pops
// the "notifications" list and delivers each message to the client's chat.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"skibook/internal/logger"
	"skibook/internal/metrics"

	"github.com/redis/go-redis/v9"
)

const QueueKey = "notifications"

const (
	KindBookingConfirmed = "booking_confirmed"
	KindBookingCancelled = "booking_cancelled"
	KindPaymentFailed    = "payment_failed"
	KindBonusCredited    = "bonus_credited"
	KindWalletTopUp      = "wallet_topup"
)

type Notification struct {
	ClientID int64     `json:"client_id"`
	Kind     string    `json:"kind"`
	Text     string    `json:"text"`
	Created  time.Time `json:"created"`
}

type Service struct {
	redis *redis.Client
}

func New(rdb *redis.Client) *Service {
	return &Service{redis: rdb}
}

// Send pushes n onto the queue and reports failures to the caller.
func (s *Service) Send(ctx context.Context, n Notification) error {
	if n.Created.IsZero() {
		n.Created = time.Now().UTC()
	}

	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	if err := s.redis.LPush(ctx, QueueKey, data).Err(); err != nil {
		metrics.RecordNotification(n.Kind, "failed")
		return fmt.Errorf("queue notification: %w", err)
	}

	metrics.RecordNotification(n.Kind, "queued")
	logger.Debug("notification queued", "client_id", n.ClientID, "kind", n.Kind)
	return nil
}

// Enqueue is the best-effort variant used after a business transaction has
// committed: a lost message must never undo a booking or a payment.
func (s *Service) Enqueue(ctx context.Context, n Notification) {
	if err := s.Send(ctx, n); err != nil {
		logger.Error("failed to queue notification", "client_id", n.ClientID, "kind", n.Kind, "error", err)
	}
}

func (s *Service) BookingConfirmed(ctx context.Context, clientID int64, resource string, startsAt time.Time) {
	s.Enqueue(ctx, Notification{
		ClientID: clientID,
		Kind:     KindBookingConfirmed,
		Text:     fmt.Sprintf("Booking confirmed: %s on %s.", resource, startsAt.Format("02.01.2006 15:04")),
	})
}

func (s *Service) BookingCancelled(ctx context.Context, clientID int64, bookingID, refundCents int64) {
	text := fmt.Sprintf("Booking #%d cancelled.", bookingID)
	if refundCents > 0 {
		text += fmt.Sprintf(" %s returned to your wallet.", FormatAmount(refundCents))
	}
	s.Enqueue(ctx, Notification{ClientID: clientID, Kind: KindBookingCancelled, Text: text})
}

func (s *Service) PaymentFailed(ctx context.Context, clientID int64, orderID, reason string) {
	s.Enqueue(ctx, Notification{
		ClientID: clientID,
		Kind:     KindPaymentFailed,
		Text:     fmt.Sprintf("Payment %s was not completed (%s).", orderID, reason),
	})
}

func (s *Service) BonusCredited(ctx context.Context, clientID int64, name string, amountCents int64) {
	s.Enqueue(ctx, Notification{
		ClientID: clientID,
		Kind:     KindBonusCredited,
		Text:     fmt.Sprintf("Bonus \"%s\": %s credited to your wallet.", name, FormatAmount(amountCents)),
	})
}

func (s *Service) WalletToppedUp(ctx context.Context, clientID, amountCents int64) {
	s.Enqueue(ctx, Notification{
		ClientID: clientID,
		Kind:     KindWalletTopUp,
		Text:     fmt.Sprintf("Your wallet was topped up by %s.", FormatAmount(amountCents)),
	})
}

// QueueLength returns the backlog and mirrors it into the queue gauge.
func (s *Service) QueueLength(ctx context.Context) int64 {
	length, err := s.redis.LLen(ctx, QueueKey).Result()
	if err != nil {
		logger.Warn("failed to read notification queue length", "error", err)
		return 0
	}
	metrics.NotificationQueueLength.Set(float64(length))
	return length
}

func (s *Service) Close() error {
	return s.redis.Close()
}

func FormatAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
