package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/craftconnect/marketplace-backend/pkg/db/models"
	"github.com/craftconnect/marketplace-backend/pkg/logger"
)

const defaultPublishTimeout = 5 * time.Second

const (
	NotificationPaymentSettled = "payment.settled"
	NotificationPaymentFailed  = "payment.failed"
)

// Notification is published once per newly recorded ledger row.
type Notification struct {
	Type              string    `json:"type"`
	EventID           string    `json:"event_id"`
	OrderID           uuid.UUID `json:"order_id"`
	TransactionID     uuid.UUID `json:"transaction_id"`
	SellerID          uuid.UUID `json:"seller_id"`
	Status            string    `json:"status"`
	GrossAmountCents  int64     `json:"gross_amount_cents"`
	AdminFeeCents     int64     `json:"admin_fee_cents"`
	SellerAmountCents int64     `json:"seller_amount_cents"`
	CommissionRate    string    `json:"commission_rate"`
	Currency          string    `json:"currency"`
	OccurredAt        time.Time `json:"occurred_at"`
}

func newNotification(kind, eventID string, txn *models.Transaction) Notification {
	return Notification{
		Type:              kind,
		EventID:           eventID,
		OrderID:           txn.OrderID,
		TransactionID:     txn.ID,
		SellerID:          txn.SellerID,
		Status:            txn.Status.String(),
		GrossAmountCents:  txn.GrossAmountCents,
		AdminFeeCents:     txn.AdminFeeCents,
		SellerAmountCents: txn.SellerAmountCents,
		CommissionRate:    txn.CommissionRate.String(),
		Currency:          string(txn.Currency),
		OccurredAt:        txn.CreatedAt.UTC(),
	}
}

// Notifier tells downstream systems about settled and failed payments.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// PubSubNotifier publishes notifications as JSON messages.
type PubSubNotifier struct {
	pub publisher
}

func NewPubSubNotifier(p *gcppubsub.Publisher) (*PubSubNotifier, error) {
	if p == nil {
		return nil, errors.New("pubsub publisher required")
	}
	return &PubSubNotifier{pub: &gcpPublisher{Publisher: p}}, nil
}

func (n *PubSubNotifier) Notify(ctx context.Context, notification Notification) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	msg := &gcppubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"event_id":       notification.EventID,
			"event_type":     notification.Type,
			"order_id":       notification.OrderID.String(),
			"transaction_id": notification.TransactionID.String(),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := n.pub.Publish(publishCtx, msg)
	if result == nil {
		return errors.New("publisher returned nil result")
	}
	if _, err := result.Get(publishCtx); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}

// LogNotifier records notifications in the service log when Pub/Sub is not
// configured.
type LogNotifier struct {
	logg *logger.Logger
}

func NewLogNotifier(logg *logger.Logger) *LogNotifier {
	return &LogNotifier{logg: logg}
}

func (n *LogNotifier) Notify(ctx context.Context, notification Notification) error {
	if n == nil || n.logg == nil {
		return nil
	}
	n.logg.Info(n.logg.WithFields(ctx, map[string]any{
		"notification_type":   notification.Type,
		"transaction_id":      notification.TransactionID.String(),
		"seller_id":           notification.SellerID.String(),
		"gross_amount_cents":  notification.GrossAmountCents,
		"seller_amount_cents": notification.SellerAmountCents,
	}), "payments.notification")
	return nil
}
