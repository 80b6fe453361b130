package payments

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/craftconnect/marketplace-backend/internal/commission"
	"github.com/craftconnect/marketplace-backend/internal/ledger"
	"github.com/craftconnect/marketplace-backend/internal/orders"
	"github.com/craftconnect/marketplace-backend/pkg/db"
	"github.com/craftconnect/marketplace-backend/pkg/db/dbtest"
	"github.com/craftconnect/marketplace-backend/pkg/db/models"
	"github.com/craftconnect/marketplace-backend/pkg/enums"
	pkgerrors "github.com/craftconnect/marketplace-backend/pkg/errors"
	"github.com/craftconnect/marketplace-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "payments-test", Output: io.Discard})
}

type fakeLedger struct {
	settleInputs  []ledger.SettleInput
	failureInputs []ledger.FailureInput
	outcome       ledger.Outcome
	err           error
}

func (f *fakeLedger) Settle(_ context.Context, input ledger.SettleInput) (*ledger.SettleResult, error) {
	f.settleInputs = append(f.settleInputs, input)
	return f.result(enums.TransactionStatusSucceeded, input.OrderID)
}

func (f *fakeLedger) RecordFailure(_ context.Context, input ledger.FailureInput) (*ledger.SettleResult, error) {
	f.failureInputs = append(f.failureInputs, input)
	return f.result(enums.TransactionStatusFailed, input.OrderID)
}

func (f *fakeLedger) result(status enums.TransactionStatus, orderID uuid.UUID) (*ledger.SettleResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	outcome := f.outcome
	if outcome == "" {
		outcome = ledger.OutcomeCreated
	}
	return &ledger.SettleResult{
		Outcome:     outcome,
		Transaction: &models.Transaction{ID: uuid.New(), OrderID: orderID, Status: status},
	}, nil
}

type recordingNotifier struct {
	notifications []Notification
	err           error
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) error {
	r.notifications = append(r.notifications, n)
	return r.err
}

func validEvent(status Status) Event {
	return Event{
		Source:                   SourceCallback,
		EventID:                  "evt_1",
		OrderID:                  uuid.New(),
		AmountCents:              5000,
		ExternalPaymentReference: "pay_1",
		Status:                   status,
		FailureReason:            "card_declined",
		Metadata:                 map[string]string{"gateway": "paymongo"},
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)

	_, err = NewService(ServiceParams{Ledger: &fakeLedger{}, Rates: commission.StaticRateSource{Rate: commission.MustRate("0.02")}})
	require.Error(t, err)

	svc, err := NewService(ServiceParams{Ledger: &fakeLedger{}, Rates: commission.StaticRateSource{Rate: commission.MustRate("0.02")}, Logger: testLogger()})
	require.NoError(t, err)
	assert.IsType(t, &LogNotifier{}, svc.notifier)
}

func TestHandleEventSettlesWithCurrentRate(t *testing.T) {
	fl := &fakeLedger{}
	notifier := &recordingNotifier{}
	calls := 0
	rates := commission.RateSourceFunc(func(context.Context) (commission.Rate, error) {
		calls++
		if calls == 1 {
			return commission.MustRate("0.02"), nil
		}
		return commission.MustRate("0.05"), nil
	})
	svc, err := NewService(ServiceParams{Ledger: fl, Rates: rates, Notifier: notifier, Logger: testLogger()})
	require.NoError(t, err)

	event := validEvent(StatusSucceeded)
	result, err := svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, ledger.OutcomeCreated, result.Outcome)

	require.Len(t, fl.settleInputs, 1)
	input := fl.settleInputs[0]
	assert.Equal(t, event.OrderID, input.OrderID)
	assert.Equal(t, int64(5000), input.AmountCents)
	assert.Equal(t, "pay_1", input.ExternalPaymentReference)
	assert.Equal(t, "0.02", input.Rate.String())
	assert.Equal(t, "evt_1", input.Metadata["event_id"])
	assert.Equal(t, "paymongo", input.Metadata["gateway"])

	second := validEvent(StatusSucceeded)
	_, err = svc.HandleEvent(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, "0.05", fl.settleInputs[1].Rate.String())

	require.Len(t, notifier.notifications, 2)
	assert.Equal(t, NotificationPaymentSettled, notifier.notifications[0].Type)
	assert.Equal(t, "evt_1", notifier.notifications[0].EventID)
}

func TestHandleEventRecordsFailure(t *testing.T) {
	fl := &fakeLedger{}
	notifier := &recordingNotifier{}
	svc, err := NewService(ServiceParams{Ledger: fl, Rates: commission.StaticRateSource{Rate: commission.MustRate("0.02")}, Notifier: notifier, Logger: testLogger()})
	require.NoError(t, err)

	_, err = svc.HandleEvent(context.Background(), validEvent(StatusFailed))
	require.NoError(t, err)
	assert.Empty(t, fl.settleInputs)
	require.Len(t, fl.failureInputs, 1)
	assert.Equal(t, "card_declined", fl.failureInputs[0].Reason)
	assert.Equal(t, "evt_1", fl.failureInputs[0].EventID)
	require.Len(t, notifier.notifications, 1)
	assert.Equal(t, NotificationPaymentFailed, notifier.notifications[0].Type)
}

func TestHandleEventDuplicateDoesNotNotify(t *testing.T) {
	fl := &fakeLedger{outcome: ledger.OutcomeAlreadyProcessed}
	notifier := &recordingNotifier{}
	svc, err := NewService(ServiceParams{Ledger: fl, Rates: commission.StaticRateSource{Rate: commission.MustRate("0.02")}, Notifier: notifier, Logger: testLogger()})
	require.NoError(t, err)

	result, err := svc.HandleEvent(context.Background(), validEvent(StatusSucceeded))
	require.NoError(t, err)
	assert.Equal(t, ledger.OutcomeAlreadyProcessed, result.Outcome)
	assert.Empty(t, notifier.notifications)
}

func TestHandleEventNotifierFailureIsNotFatal(t *testing.T) {
	notifier := &recordingNotifier{err: errors.New("pubsub unavailable")}
	svc, err := NewService(ServiceParams{Ledger: &fakeLedger{}, Rates: commission.StaticRateSource{Rate: commission.MustRate("0.02")}, Notifier: notifier, Logger: testLogger()})
	require.NoError(t, err)

	_, err = svc.HandleEvent(context.Background(), validEvent(StatusSucceeded))
	require.NoError(t, err)
	assert.Len(t, notifier.notifications, 1)
}

func TestHandleEventErrors(t *testing.T) {
	ctx := context.Background()

	svc, err := NewService(ServiceParams{Ledger: &fakeLedger{}, Rates: commission.StaticRateSource{Rate: commission.MustRate("0.02")}, Logger: testLogger()})
	require.NoError(t, err)
	invalid := validEvent(Status("pending"))
	_, err = svc.HandleEvent(ctx, invalid)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	broken := commission.RateSourceFunc(func(context.Context) (commission.Rate, error) {
		return commission.Rate{}, errors.New("bad env")
	})
	fl := &fakeLedger{}
	svc, err = NewService(ServiceParams{Ledger: fl, Rates: broken, Logger: testLogger()})
	require.NoError(t, err)
	_, err = svc.HandleEvent(ctx, validEvent(StatusSucceeded))
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInternal))
	assert.Empty(t, fl.settleInputs)

	mismatch := pkgerrors.Wrap(pkgerrors.CodeAmountMismatch, ledger.ErrAmountMismatch, "mismatch")
	svc, err = NewService(ServiceParams{Ledger: &fakeLedger{err: mismatch}, Rates: commission.StaticRateSource{Rate: commission.MustRate("0.02")}, Logger: testLogger()})
	require.NoError(t, err)
	_, err = svc.HandleEvent(ctx, validEvent(StatusSucceeded))
	require.ErrorIs(t, err, ledger.ErrAmountMismatch)
}

func TestHandleEventAgainstLedger(t *testing.T) {
	gdb := dbtest.Open(t)
	logg := testLogger()
	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Transactions:      ledger.NewRepository(gdb),
		Balances:          ledger.NewBalanceRepository(gdb),
		Orders:            orders.NewRepository(gdb),
		TransactionRunner: db.NewFromConn(gdb),
		Logger:            logg,
		Retry:             ledger.RetryPolicy{MaxAttempts: 2, BaseBackoff: time.Millisecond},
	})
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	svc, err := NewService(ServiceParams{Ledger: ledgerSvc, Rates: commission.StaticRateSource{Rate: commission.MustRate("0.02")}, Notifier: notifier, Logger: logg})
	require.NoError(t, err)

	seller := uuid.New()
	order := dbtest.CreateOrder(t, gdb, dbtest.Item{SellerID: seller, Category: "weaving", UnitPriceCents: 25000, Quantity: 2})
	event := Event{
		Source:                   SourceCallback,
		EventID:                  "evt_live",
		OrderID:                  order.ID,
		AmountCents:              50000,
		ExternalPaymentReference: "pay_live",
		Status:                   StatusSucceeded,
	}

	first, err := svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, ledger.OutcomeCreated, first.Outcome)
	second, err := svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, ledger.OutcomeAlreadyProcessed, second.Outcome)

	assert.Equal(t, int64(49000), dbtest.AvailableBalance(t, gdb, seller))
	assert.Equal(t, int64(1), dbtest.CountTransactions(t, gdb, order.ID))
	require.Len(t, notifier.notifications, 1)
	assert.Equal(t, int64(1000), notifier.notifications[0].AdminFeeCents)
	assert.Equal(t, seller, notifier.notifications[0].SellerID)
}
