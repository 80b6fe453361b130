package payments

import (
	"context"

	"github.com/craftconnect/marketplace-backend/internal/commission"
	"github.com/craftconnect/marketplace-backend/internal/ledger"
	"github.com/craftconnect/marketplace-backend/pkg/db/models"
	pkgerrors "github.com/craftconnect/marketplace-backend/pkg/errors"
	"github.com/craftconnect/marketplace-backend/pkg/logger"
	"github.com/craftconnect/marketplace-backend/pkg/metrics"
)

// Ledger is the settlement surface the webhook adapter drives.
type Ledger interface {
	Settle(ctx context.Context, input ledger.SettleInput) (*ledger.SettleResult, error)
	RecordFailure(ctx context.Context, input ledger.FailureInput) (*ledger.SettleResult, error)
}

type ServiceParams struct {
	Ledger   Ledger
	Rates    commission.RateSource
	Notifier Notifier
	Logger   *logger.Logger
	Metrics  *metrics.WebhookMetrics
}

// Service turns normalized gateway events into ledger entries.
type Service struct {
	ledger   Ledger
	rates    commission.RateSource
	notifier Notifier
	logg     *logger.Logger
	metrics  *metrics.WebhookMetrics
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger required")
	}
	if params.Rates == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "rate source required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	notifier := params.Notifier
	if notifier == nil {
		notifier = NewLogNotifier(params.Logger)
	}
	return &Service{
		ledger:   params.Ledger,
		rates:    params.Rates,
		notifier: notifier,
		logg:     params.Logger,
		metrics:  params.Metrics,
	}, nil
}

// HandleEvent settles or records the failure of one gateway event. Duplicate
// deliveries return the existing transaction with OutcomeAlreadyProcessed and
// publish nothing.
func (s *Service) HandleEvent(ctx context.Context, event Event) (*ledger.SettleResult, error) {
	if err := event.Validate(); err != nil {
		s.metrics.IncEvent(event.Source, "invalid")
		return nil, err
	}

	ctx = s.logg.WithFields(s.logg.WithOrderID(ctx, event.OrderID.String()), map[string]any{
		"event_id":     event.EventID,
		"event_source": event.Source,
		"event_status": string(event.Status),
	})

	rate, err := s.rates.CurrentRate(ctx)
	if err != nil {
		s.metrics.IncEvent(event.Source, "error")
		wrapped := pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve commission rate")
		s.logg.Error(ctx, "payments.rate_unavailable", wrapped)
		return nil, wrapped
	}

	var (
		result *ledger.SettleResult
		kind   string
	)
	switch event.Status {
	case StatusSucceeded:
		kind = NotificationPaymentSettled
		result, err = s.ledger.Settle(ctx, ledger.SettleInput{
			OrderID:                  event.OrderID,
			AmountCents:              event.AmountCents,
			ExternalPaymentReference: event.ExternalPaymentReference,
			Rate:                     rate,
			PaymentMethod:            event.PaymentMethod,
			Metadata:                 event.gatewayMetadata(),
		})
	default:
		kind = NotificationPaymentFailed
		result, err = s.ledger.RecordFailure(ctx, ledger.FailureInput{
			OrderID:                  event.OrderID,
			AmountCents:              event.AmountCents,
			ExternalPaymentReference: event.ExternalPaymentReference,
			Rate:                     rate,
			PaymentMethod:            event.PaymentMethod,
			Reason:                   event.FailureReason,
			EventID:                  event.EventID,
			Metadata:                 event.gatewayMetadata(),
		})
	}
	if err != nil {
		s.metrics.IncEvent(event.Source, "error")
		return nil, err
	}

	if result.Outcome == ledger.OutcomeAlreadyProcessed {
		s.metrics.IncEvent(event.Source, "duplicate")
		return result, nil
	}

	s.metrics.IncEvent(event.Source, string(event.Status))
	s.notify(ctx, kind, event.EventID, result.Transaction)
	return result, nil
}

// notify never fails the event: the ledger row is already committed.
func (s *Service) notify(ctx context.Context, kind, eventID string, txn *models.Transaction) {
	if txn == nil {
		return
	}
	if err := s.notifier.Notify(ctx, newNotification(kind, eventID, txn)); err != nil {
		s.logg.Error(s.logg.WithTransactionID(ctx, txn.ID.String()), "payments.notification_failed", err)
	}
}
