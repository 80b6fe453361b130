package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/craftconnect/marketplace-backend/internal/commission"
	"github.com/craftconnect/marketplace-backend/internal/orders"
	"github.com/craftconnect/marketplace-backend/pkg/db"
	"github.com/craftconnect/marketplace-backend/pkg/db/models"
	"github.com/craftconnect/marketplace-backend/pkg/enums"
	pkgerrors "github.com/craftconnect/marketplace-backend/pkg/errors"
	"github.com/craftconnect/marketplace-backend/pkg/logger"
	"github.com/craftconnect/marketplace-backend/pkg/metrics"
	"github.com/craftconnect/marketplace-backend/pkg/outbox"
	"github.com/craftconnect/marketplace-backend/pkg/outbox/payloads"
	"github.com/craftconnect/marketplace-backend/pkg/types"
)

const idempotencyKeyIndex = "idempotency_key"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// EventEmitter queues an event inside the ledger's own database transaction.
type EventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Outcome tells callers whether a call wrote new rows or replayed an earlier
// result.
type Outcome string

const (
	OutcomeCreated          Outcome = "created"
	OutcomeAlreadyProcessed Outcome = "already_processed"
)

// SettleResult is returned by Settle and RecordFailure.
type SettleResult struct {
	Outcome     Outcome
	Transaction *models.Transaction
}

// RefundResult is returned by Refund. SellerBalance is only set when the
// refund was created by this call.
type RefundResult struct {
	Outcome       Outcome
	Refund        *models.Transaction
	Original      *models.Transaction
	SellerBalance *models.SellerBalance
}

// SettleInput is one confirmed payment for an order.
type SettleInput struct {
	OrderID                  uuid.UUID
	AmountCents              int64
	ExternalPaymentReference string
	Rate                     commission.Rate
	PaymentMethod            *enums.PaymentMethod
	Metadata                 map[string]string
}

// FailureInput is one rejected payment attempt for an order.
type FailureInput struct {
	OrderID                  uuid.UUID
	AmountCents              int64
	ExternalPaymentReference string
	Rate                     commission.Rate
	PaymentMethod            *enums.PaymentMethod
	Reason                   string
	EventID                  string
	Metadata                 map[string]string
}

// RefundInput reverses part or all of a succeeded transaction. A nil
// AmountCents refunds whatever gross is still outstanding.
type RefundInput struct {
	TransactionID  uuid.UUID
	AmountCents    *int64
	Reason         string
	IdempotencyKey string
}

type ServiceParams struct {
	Transactions      Repository
	Balances          BalanceRepository
	Orders            orders.Repository
	TransactionRunner txRunner
	Logger            *logger.Logger
	Metrics           *metrics.LedgerMetrics
	Outbox            EventEmitter
	Retry             RetryPolicy
	Clock             func() time.Time
}

// Service is the commission and settlement ledger.
type Service struct {
	transactions Repository
	balances     BalanceRepository
	orders       orders.Repository
	txRunner     txRunner
	logg         *logger.Logger
	metrics      *metrics.LedgerMetrics
	outbox       EventEmitter
	retry        RetryPolicy
	now          func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Transactions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction repository required")
	}
	if params.Balances == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "balance repository required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repository required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	retryPolicy := params.Retry
	if retryPolicy.MaxAttempts == 0 {
		retryPolicy = DefaultRetryPolicy
	}
	clock := params.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		transactions: params.Transactions,
		balances:     params.Balances,
		orders:       params.Orders,
		txRunner:     params.TransactionRunner,
		logg:         params.Logger,
		metrics:      params.Metrics,
		outbox:       params.Outbox,
		retry:        retryPolicy,
		now:          clock,
	}, nil
}

// SettlementKey is the idempotency key of the settlement for an order and
// gateway reference.
func SettlementKey(orderID uuid.UUID, reference string) string {
	return fmt.Sprintf("settle:%s:%s", orderID, reference)
}

// FailureKey is the idempotency key of a recorded payment failure.
func FailureKey(orderID uuid.UUID, reference string) string {
	return fmt.Sprintf("fail:%s:%s", orderID, reference)
}

// RefundKey scopes a client supplied idempotency key to its original.
func RefundKey(originalID uuid.UUID, key string) string {
	return fmt.Sprintf("refund:%s:%s", originalID, key)
}

// Settle records one confirmed payment exactly once: a succeeded transaction,
// the seller credit and the order's paid flag commit together. Replays of the
// same order and reference return the existing transaction.
func (s *Service) Settle(ctx context.Context, input SettleInput) (*SettleResult, error) {
	reference := strings.TrimSpace(input.ExternalPaymentReference)
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "external payment reference is required")
	}
	if input.AmountCents < 0 {
		return nil, validation(ErrNegativeAmount, "amount must be non-negative")
	}
	input.ExternalPaymentReference = reference

	ctx = s.logg.WithOrderID(ctx, input.OrderID.String())
	start := time.Now()
	defer func() { s.metrics.ObserveDuration("settle", time.Since(start)) }()

	var result *SettleResult
	err := s.runWithRetry(ctx, "settle", func(ctx context.Context) error {
		var err error
		result, err = s.settleOnce(ctx, input)
		return err
	})
	if err != nil {
		s.metrics.IncSettlement(settlementFailureOutcome(err))
		switch {
		case errors.Is(err, ErrAmountMismatch):
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "ledger.settlement.amount_mismatch")
		case errors.Is(err, ErrOrderAlreadySettled):
			s.logg.Warn(s.logg.WithField(ctx, "external_payment_reference", input.ExternalPaymentReference), "ledger.settlement.order_already_settled")
		case pkgerrors.IsRetryable(err):
			s.logg.Error(ctx, "ledger.settlement.failed", err)
		default:
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "ledger.settlement.rejected")
		}
		return nil, err
	}

	txnCtx := s.logg.WithTransactionID(ctx, result.Transaction.ID.String())
	if result.Outcome == OutcomeAlreadyProcessed {
		s.metrics.IncSettlement("duplicate")
		s.logg.Info(txnCtx, "ledger.settlement.duplicate")
		return result, nil
	}

	txn := result.Transaction
	s.metrics.IncSettlement("created")
	s.metrics.AddAmount("gross", txn.GrossAmountCents)
	s.metrics.AddAmount("admin_fee", txn.AdminFeeCents)
	s.metrics.AddAmount("seller_payout", txn.SellerAmountCents)
	s.logg.Info(s.logg.WithFields(txnCtx, map[string]any{
		"seller_id":           txn.SellerID.String(),
		"gross_amount_cents":  txn.GrossAmountCents,
		"admin_fee_cents":     txn.AdminFeeCents,
		"seller_amount_cents": txn.SellerAmountCents,
		"commission_rate":     txn.CommissionRate.String(),
	}), "ledger.settlement.created")
	return result, nil
}

func (s *Service) settleOnce(ctx context.Context, input SettleInput) (*SettleResult, error) {
	key := SettlementKey(input.OrderID, input.ExternalPaymentReference)

	var result *SettleResult
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		orderRepo := s.orders.WithTx(tx)
		txnRepo := s.transactions.WithTx(tx)

		order, sellerID, err := s.loadOrder(ctx, orderRepo, input.OrderID)
		if err != nil {
			return err
		}

		existing, err := txnRepo.FindSettlement(ctx, input.OrderID, input.ExternalPaymentReference)
		if err != nil {
			return classify(err, "lookup settlement")
		}
		if existing != nil {
			result = &SettleResult{Outcome: OutcomeAlreadyProcessed, Transaction: existing}
			return nil
		}
		if order.PaymentStatus.Settled() {
			return orderAlreadySettled(order.PaymentStatus.String())
		}

		total := order.TotalCents()
		if input.AmountCents != total {
			return amountMismatch(total, input.AmountCents)
		}

		split, err := commission.ComputeSplit(input.AmountCents, input.Rate)
		if err != nil {
			return validation(err, "compute commission split")
		}
		breakdown, err := itemBreakdown(split, order)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "allocate item commission")
		}

		method := input.PaymentMethod
		if method == nil {
			method = order.PaymentMethod
		}
		txn := &models.Transaction{
			ID:                       uuid.New(),
			OrderID:                  order.ID,
			SellerID:                 sellerID,
			GrossAmountCents:         split.GrossCents,
			AdminFeeCents:            split.AdminFeeCents,
			SellerAmountCents:        split.SellerCents,
			CommissionRate:           split.Rate.Decimal(),
			Status:                   enums.TransactionStatusSucceeded,
			ExternalPaymentReference: input.ExternalPaymentReference,
			IdempotencyKey:           &key,
			Currency:                 order.Currency,
			PaymentMethod:            method,
			Category:                 optionalString(order.PrimaryCategory()),
			Metadata:                 types.NewSettlementMetadata(breakdown, input.Metadata),
		}
		if err := txnRepo.Create(ctx, txn); err != nil {
			if db.IsUniqueViolation(err, idempotencyKeyIndex) {
				return errDuplicate
			}
			return classify(err, "insert settlement")
		}

		if _, err := s.balances.WithTx(tx).CreditAvailable(ctx, sellerID, split.SellerCents); err != nil {
			return classify(err, "credit seller balance")
		}
		if err := s.emit(ctx, tx, enums.EventPaymentSettled, txn); err != nil {
			return err
		}

		if err := orderRepo.MarkOrderPaid(ctx, order.ID, method, s.now()); err != nil {
			switch {
			case errors.Is(err, orders.ErrOrderNotFound):
				return orderNotFound()
			case errors.Is(err, orders.ErrOrderAlreadySettled):
				return orderAlreadySettled(order.PaymentStatus.String())
			}
			return classify(err, "mark order paid")
		}

		result = &SettleResult{Outcome: OutcomeCreated, Transaction: txn}
		return nil
	})
	if errors.Is(err, errDuplicate) {
		return s.replay(ctx, key)
	}
	if err != nil {
		return nil, classify(err, "settle payment")
	}
	return result, nil
}

// RecordFailure stores a failed payment attempt for audit without touching
// balances. A failure that arrives after the pair already settled returns the
// settled transaction unchanged.
func (s *Service) RecordFailure(ctx context.Context, input FailureInput) (*SettleResult, error) {
	reference := strings.TrimSpace(input.ExternalPaymentReference)
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "external payment reference is required")
	}
	if input.AmountCents < 0 {
		return nil, validation(ErrNegativeAmount, "amount must be non-negative")
	}
	input.ExternalPaymentReference = reference

	ctx = s.logg.WithOrderID(ctx, input.OrderID.String())
	start := time.Now()
	defer func() { s.metrics.ObserveDuration("record_failure", time.Since(start)) }()

	var result *SettleResult
	err := s.runWithRetry(ctx, "record_failure", func(ctx context.Context) error {
		var err error
		result, err = s.recordFailureOnce(ctx, input)
		return err
	})
	if err != nil {
		s.metrics.IncSettlement("error")
		s.logg.Error(ctx, "ledger.payment_failure.failed", err)
		return nil, err
	}

	txnCtx := s.logg.WithTransactionID(ctx, result.Transaction.ID.String())
	if result.Outcome == OutcomeAlreadyProcessed {
		s.logg.Info(s.logg.WithField(txnCtx, "status", result.Transaction.Status.String()), "ledger.payment_failure.duplicate")
		return result, nil
	}
	s.metrics.IncSettlement("payment_failed")
	s.logg.Info(s.logg.WithField(txnCtx, "reason", input.Reason), "ledger.payment_failure.recorded")
	return result, nil
}

func (s *Service) recordFailureOnce(ctx context.Context, input FailureInput) (*SettleResult, error) {
	key := FailureKey(input.OrderID, input.ExternalPaymentReference)

	var result *SettleResult
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		orderRepo := s.orders.WithTx(tx)
		txnRepo := s.transactions.WithTx(tx)

		order, sellerID, err := s.loadOrder(ctx, orderRepo, input.OrderID)
		if err != nil {
			return err
		}

		settled, err := txnRepo.FindSettlement(ctx, input.OrderID, input.ExternalPaymentReference)
		if err != nil {
			return classify(err, "lookup settlement")
		}
		if settled != nil {
			result = &SettleResult{Outcome: OutcomeAlreadyProcessed, Transaction: settled}
			return nil
		}
		existing, err := txnRepo.FindByIdempotencyKey(ctx, key)
		if err != nil {
			return classify(err, "lookup failure")
		}
		if existing != nil {
			result = &SettleResult{Outcome: OutcomeAlreadyProcessed, Transaction: existing}
			return nil
		}

		split, err := commission.ComputeSplit(input.AmountCents, input.Rate)
		if err != nil {
			return validation(err, "compute commission split")
		}
		method := input.PaymentMethod
		if method == nil {
			method = order.PaymentMethod
		}
		txn := &models.Transaction{
			ID:                       uuid.New(),
			OrderID:                  order.ID,
			SellerID:                 sellerID,
			GrossAmountCents:         split.GrossCents,
			AdminFeeCents:            split.AdminFeeCents,
			SellerAmountCents:        split.SellerCents,
			CommissionRate:           split.Rate.Decimal(),
			Status:                   enums.TransactionStatusFailed,
			ExternalPaymentReference: input.ExternalPaymentReference,
			IdempotencyKey:           &key,
			Currency:                 order.Currency,
			PaymentMethod:            method,
			Category:                 optionalString(order.PrimaryCategory()),
			Metadata:                 types.NewFailureMetadata(input.Reason, input.EventID, input.Metadata),
		}
		if err := txnRepo.Create(ctx, txn); err != nil {
			if db.IsUniqueViolation(err, idempotencyKeyIndex) {
				return errDuplicate
			}
			return classify(err, "insert payment failure")
		}
		if err := orderRepo.MarkPaymentFailed(ctx, order.ID); err != nil {
			return classify(err, "mark payment failed")
		}
		if err := s.emit(ctx, tx, enums.EventPaymentFailed, txn); err != nil {
			return err
		}

		result = &SettleResult{Outcome: OutcomeCreated, Transaction: txn}
		return nil
	})
	if errors.Is(err, errDuplicate) {
		return s.replay(ctx, key)
	}
	if err != nil {
		return nil, classify(err, "record payment failure")
	}
	return result, nil
}

// Refund reverses part or all of a succeeded transaction. The refund split
// uses the original's recorded rate, and the refund that drains the original
// takes exactly the remaining amounts so both rows net to zero.
func (s *Service) Refund(ctx context.Context, input RefundInput) (*RefundResult, error) {
	if input.TransactionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}
	if input.AmountCents != nil && *input.AmountCents <= 0 {
		return nil, validation(ErrNegativeAmount, "refund amount must be positive")
	}
	input.IdempotencyKey = strings.TrimSpace(input.IdempotencyKey)

	ctx = s.logg.WithTransactionID(ctx, input.TransactionID.String())
	start := time.Now()
	defer func() { s.metrics.ObserveDuration("refund", time.Since(start)) }()

	var result *RefundResult
	err := s.runWithRetry(ctx, "refund", func(ctx context.Context) error {
		var err error
		result, err = s.refundOnce(ctx, input)
		return err
	})
	if err != nil {
		s.metrics.IncRefund(refundFailureOutcome(err))
		if pkgerrors.IsRetryable(err) {
			s.logg.Error(ctx, "ledger.refund.failed", err)
		} else {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "ledger.refund.rejected")
		}
		return nil, err
	}

	refundCtx := s.logg.WithFields(ctx, map[string]any{
		"refund_transaction_id": result.Refund.ID.String(),
		"seller_id":             result.Refund.SellerID.String(),
	})
	if result.Outcome == OutcomeAlreadyProcessed {
		s.metrics.IncRefund("duplicate")
		s.logg.Info(refundCtx, "ledger.refund.duplicate")
		return result, nil
	}

	s.metrics.IncRefund("created")
	s.metrics.AddAmount("refund_gross", result.Refund.GrossAmountCents)
	s.metrics.AddAmount("refund_seller", result.Refund.SellerAmountCents)
	s.logg.Info(s.logg.WithFields(refundCtx, map[string]any{
		"gross_amount_cents":  result.Refund.GrossAmountCents,
		"seller_amount_cents": result.Refund.SellerAmountCents,
		"original_status":     result.Original.Status.String(),
	}), "ledger.refund.created")
	return result, nil
}

func (s *Service) refundOnce(ctx context.Context, input RefundInput) (*RefundResult, error) {
	var key *string
	if input.IdempotencyKey != "" {
		scoped := RefundKey(input.TransactionID, input.IdempotencyKey)
		key = &scoped
	}

	var result *RefundResult
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		txnRepo := s.transactions.WithTx(tx)

		if key != nil {
			prior, err := s.findRefundReplay(ctx, txnRepo, *key)
			if err != nil {
				return err
			}
			if prior != nil {
				result = prior
				return nil
			}
		}

		original, err := txnRepo.FindByIDForUpdate(ctx, input.TransactionID)
		if err != nil {
			return classify(err, "lock original transaction")
		}
		if original == nil {
			return transactionNotFound()
		}
		if original.IsRefund() || original.Status != enums.TransactionStatusSucceeded {
			return notRefundable(original.Status.String())
		}

		remaining := original.RemainingGrossCents()
		amount := remaining
		if input.AmountCents != nil {
			amount = *input.AmountCents
		}
		if amount <= 0 {
			return notRefundable(original.Status.String())
		}
		if amount > remaining {
			return refundExceeds(remaining, amount)
		}

		totals, err := refundTotals(original, amount)
		if err != nil {
			return validation(err, "compute refund split")
		}
		drained := totals.GrossCents == remaining

		refund := &models.Transaction{
			ID:                       uuid.New(),
			OrderID:                  original.OrderID,
			SellerID:                 original.SellerID,
			OriginalTransactionID:    &original.ID,
			GrossAmountCents:         -totals.GrossCents,
			AdminFeeCents:            -totals.FeeCents,
			SellerAmountCents:        -totals.SellerCents,
			CommissionRate:           original.CommissionRate,
			Status:                   enums.TransactionStatusRefunded,
			ExternalPaymentReference: original.ExternalPaymentReference,
			IdempotencyKey:           key,
			Currency:                 original.Currency,
			PaymentMethod:            original.PaymentMethod,
			Category:                 original.Category,
			Metadata:                 types.NewRefundMetadata(original.ID, input.Reason, drained),
		}
		if err := txnRepo.Create(ctx, refund); err != nil {
			if key != nil && db.IsUniqueViolation(err, idempotencyKeyIndex) {
				return errDuplicate
			}
			return classify(err, "insert refund")
		}

		balance, err := s.balances.WithTx(tx).DebitAvailable(ctx, original.SellerID, totals.SellerCents)
		if err != nil {
			return classify(err, "debit seller balance")
		}

		status := enums.TransactionStatusSucceeded
		if drained {
			status = enums.TransactionStatusRefunded
		}
		if err := txnRepo.ApplyRefund(ctx, original.ID, totals, status); err != nil {
			return classify(err, "update original transaction")
		}
		if drained {
			if err := s.orders.WithTx(tx).MarkRefunded(ctx, original.OrderID); err != nil {
				return classify(err, "mark order refunded")
			}
		}
		if err := s.emit(ctx, tx, enums.EventRefundRecorded, refund); err != nil {
			return err
		}

		original.RefundedGrossCents += totals.GrossCents
		original.RefundedFeeCents += totals.FeeCents
		original.RefundedSellerCents += totals.SellerCents
		original.Status = status

		result = &RefundResult{
			Outcome:       OutcomeCreated,
			Refund:        refund,
			Original:      original,
			SellerBalance: balance,
		}
		return nil
	})
	if errors.Is(err, errDuplicate) {
		return s.replayRefund(ctx, *key)
	}
	if err != nil {
		return nil, classify(err, "refund transaction")
	}
	return result, nil
}

// CreditAvailable adds to a seller's available balance in its own
// transaction.
func (s *Service) CreditAvailable(ctx context.Context, sellerID uuid.UUID, amountCents int64) (*models.SellerBalance, error) {
	return s.adjustBalance(ctx, "credit", sellerID, func(ctx context.Context, repo BalanceRepository) (*models.SellerBalance, error) {
		return repo.CreditAvailable(ctx, sellerID, amountCents)
	})
}

// DebitAvailable subtracts from a seller's available balance in its own
// transaction. It never leaves the balance negative.
func (s *Service) DebitAvailable(ctx context.Context, sellerID uuid.UUID, amountCents int64) (*models.SellerBalance, error) {
	return s.adjustBalance(ctx, "debit", sellerID, func(ctx context.Context, repo BalanceRepository) (*models.SellerBalance, error) {
		return repo.DebitAvailable(ctx, sellerID, amountCents)
	})
}

func (s *Service) adjustBalance(ctx context.Context, op string, sellerID uuid.UUID, fn func(context.Context, BalanceRepository) (*models.SellerBalance, error)) (*models.SellerBalance, error) {
	if sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id is required")
	}
	ctx = s.logg.WithSellerID(ctx, sellerID.String())
	start := time.Now()
	defer func() { s.metrics.ObserveDuration(op, time.Since(start)) }()

	var balance *models.SellerBalance
	err := s.runWithRetry(ctx, op, func(ctx context.Context) error {
		return classify(s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
			updated, err := fn(ctx, s.balances.WithTx(tx))
			if err != nil {
				return classify(err, op+" seller balance")
			}
			balance = updated
			return nil
		}), op+" seller balance")
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithField(ctx, "available_balance_cents", balance.AvailableBalanceCents), "ledger.balance."+op)
	return balance, nil
}

// GetTransaction loads one transaction by id.
func (s *Service) GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	txn, err := s.transactions.FindByID(ctx, id)
	if err != nil {
		return nil, classify(err, "load transaction")
	}
	if txn == nil {
		return nil, transactionNotFound()
	}
	return txn, nil
}

// ListRefunds returns the refund rows recorded against an original
// transaction, oldest first.
func (s *Service) ListRefunds(ctx context.Context, originalID uuid.UUID) ([]models.Transaction, error) {
	refunds, err := s.transactions.ListRefunds(ctx, originalID)
	if err != nil {
		return nil, classify(err, "list refunds")
	}
	return refunds, nil
}

// ListOrderTransactions returns every ledger row for an order, oldest first.
func (s *Service) ListOrderTransactions(ctx context.Context, orderID uuid.UUID) ([]models.Transaction, error) {
	txns, err := s.transactions.ListByOrderID(ctx, orderID)
	if err != nil {
		return nil, classify(err, "list order transactions")
	}
	return txns, nil
}

func (s *Service) loadOrder(ctx context.Context, repo orders.Repository, orderID uuid.UUID) (*models.Order, uuid.UUID, error) {
	order, err := repo.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			return nil, uuid.Nil, orderNotFound()
		}
		return nil, uuid.Nil, classify(err, "load order")
	}
	sellerID, err := sellerForOrder(order)
	if err != nil {
		return nil, uuid.Nil, err
	}
	return order, sellerID, nil
}

func (s *Service) replay(ctx context.Context, key string) (*SettleResult, error) {
	existing, err := s.transactions.FindByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, classify(err, "reload transaction")
	}
	if existing == nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistenceConflict, ErrPersistenceConflict, "duplicate key without a committed row")
	}
	return &SettleResult{Outcome: OutcomeAlreadyProcessed, Transaction: existing}, nil
}

func (s *Service) replayRefund(ctx context.Context, key string) (*RefundResult, error) {
	prior, err := s.findRefundReplay(ctx, s.transactions, key)
	if err != nil {
		return nil, err
	}
	if prior == nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistenceConflict, ErrPersistenceConflict, "duplicate key without a committed row")
	}
	return prior, nil
}

func (s *Service) findRefundReplay(ctx context.Context, repo Repository, key string) (*RefundResult, error) {
	refund, err := repo.FindByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, classify(err, "lookup refund")
	}
	if refund == nil {
		return nil, nil
	}
	if refund.OriginalTransactionID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key belongs to another operation")
	}
	original, err := repo.FindByID(ctx, *refund.OriginalTransactionID)
	if err != nil {
		return nil, classify(err, "load original transaction")
	}
	return &RefundResult{Outcome: OutcomeAlreadyProcessed, Refund: refund, Original: original}, nil
}

func (s *Service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, txn *models.Transaction) error {
	if s.outbox == nil {
		return nil
	}
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateTransaction,
		AggregateID:   txn.ID,
		Data:          payloads.NewLedgerTransactionEvent(txn),
		Version:       1,
		OccurredAt:    s.now(),
	})
	if err != nil {
		return classify(err, "queue "+string(eventType)+" event")
	}
	return nil
}

func sellerForOrder(order *models.Order) (uuid.UUID, error) {
	sellers := order.SellerIDs()
	switch len(sellers) {
	case 0:
		return uuid.Nil, validation(ErrNoSellerForOrder, "order has no seller")
	case 1:
		return sellers[0], nil
	default:
		ids := make([]string, 0, len(sellers))
		for _, id := range sellers {
			ids = append(ids, id.String())
		}
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, ErrMultipleSellersForOrder, "order items belong to more than one seller").
			WithDetails(map[string]any{"seller_ids": ids})
	}
}

func itemBreakdown(split commission.Split, order *models.Order) ([]types.ItemCommission, error) {
	shares := make([]commission.ItemShare, 0, len(order.Items))
	for _, item := range order.Items {
		shares = append(shares, commission.ItemShare{ItemID: item.ID, GrossCents: item.LineTotalCents()})
	}
	allocations, err := commission.AllocateItems(split, shares)
	if err != nil {
		return nil, err
	}
	out := make([]types.ItemCommission, 0, len(allocations))
	for i, alloc := range allocations {
		item := order.Items[i]
		out = append(out, types.ItemCommission{
			ItemID:      item.ID,
			ProductID:   item.ProductID,
			Category:    item.Category,
			GrossCents:  alloc.GrossCents,
			FeeCents:    alloc.FeeCents,
			SellerCents: alloc.SellerCents,
		})
	}
	return out, nil
}

// refundTotals splits a refund of gross against the original. The final
// refund takes the exact remainder; partial refunds use the original rate and
// are clamped so no counter runs past the original amounts.
func refundTotals(original *models.Transaction, gross int64) (RefundTotals, error) {
	remaining := RefundTotals{
		GrossCents:  original.RemainingGrossCents(),
		FeeCents:    original.RemainingFeeCents(),
		SellerCents: original.RemainingSellerCents(),
	}
	if gross == remaining.GrossCents {
		return remaining, nil
	}

	rate, err := commission.NewRate(original.CommissionRate)
	if err != nil {
		return RefundTotals{}, err
	}
	split, err := commission.ComputeSplit(gross, rate)
	if err != nil {
		return RefundTotals{}, err
	}
	totals := RefundTotals{GrossCents: gross, FeeCents: split.AdminFeeCents, SellerCents: split.SellerCents}
	if totals.SellerCents > remaining.SellerCents {
		totals.SellerCents = remaining.SellerCents
		totals.FeeCents = gross - totals.SellerCents
	}
	if totals.FeeCents > remaining.FeeCents {
		totals.FeeCents = remaining.FeeCents
		totals.SellerCents = gross - totals.FeeCents
	}
	return totals, nil
}

func settlementFailureOutcome(err error) string {
	switch {
	case errors.Is(err, ErrAmountMismatch):
		return "amount_mismatch"
	case errors.Is(err, ErrOrderNotFound):
		return "order_not_found"
	case errors.Is(err, ErrOrderAlreadySettled):
		return "order_already_settled"
	case errors.Is(err, ErrNoSellerForOrder), errors.Is(err, ErrMultipleSellersForOrder):
		return "invalid_order"
	case errors.Is(err, ErrPersistenceConflict):
		return "conflict"
	default:
		return "error"
	}
}

func refundFailureOutcome(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientSellerBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrTransactionNotRefundable), errors.Is(err, ErrRefundExceedsRemaining):
		return "rejected"
	case errors.Is(err, ErrTransactionNotFound):
		return "not_found"
	case errors.Is(err, ErrPersistenceConflict):
		return "conflict"
	default:
		return "error"
	}
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
