package ledger

import (
	"errors"
	"fmt"

	"github.com/craftconnect/marketplace-backend/pkg/db"
	pkgerrors "github.com/craftconnect/marketplace-backend/pkg/errors"
)

// Sentinel causes carried inside the typed errors returned by the service.
// Match them with errors.Is.
var (
	ErrOrderNotFound             = errors.New("order not found")
	ErrNoSellerForOrder          = errors.New("order has no seller")
	ErrMultipleSellersForOrder   = errors.New("order spans multiple sellers")
	ErrAmountMismatch            = errors.New("amount does not match order total")
	ErrOrderAlreadySettled       = errors.New("order already settled")
	ErrTransactionNotFound       = errors.New("transaction not found")
	ErrTransactionNotRefundable  = errors.New("transaction is not refundable")
	ErrRefundExceedsRemaining    = errors.New("refund exceeds remaining amount")
	ErrInsufficientSellerBalance = errors.New("insufficient seller balance")
	ErrNegativeAmount            = errors.New("amount must be non-negative")
	ErrPersistenceConflict       = errors.New("persistence conflict")
)

var errDuplicate = errors.New("idempotency key already recorded")

func orderNotFound() error {
	return pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrOrderNotFound, "order not found")
}

func orderAlreadySettled(status string) error {
	return pkgerrors.Wrap(pkgerrors.CodeStateConflict, ErrOrderAlreadySettled, "order already settled under another payment reference").
		WithDetails(map[string]any{"payment_status": status})
}

func transactionNotFound() error {
	return pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrTransactionNotFound, "transaction not found")
}

func validation(cause error, message string) error {
	return pkgerrors.Wrap(pkgerrors.CodeValidation, cause, message)
}

func amountMismatch(expected, received int64) error {
	return pkgerrors.Wrap(pkgerrors.CodeAmountMismatch, ErrAmountMismatch, "payment amount does not match order total").
		WithDetails(map[string]any{
			"expected_cents": expected,
			"received_cents": received,
		})
}

func insufficientBalance(sellerAvailable, requested int64) error {
	return pkgerrors.Wrap(pkgerrors.CodeInsufficientBalance, ErrInsufficientSellerBalance, "seller balance too low for debit").
		WithDetails(map[string]any{
			"available_cents": sellerAvailable,
			"requested_cents": requested,
		})
}

func notRefundable(status string) error {
	return pkgerrors.Wrap(pkgerrors.CodeStateConflict, ErrTransactionNotRefundable, "transaction cannot be refunded").
		WithDetails(map[string]any{"status": status})
}

func refundExceeds(remaining, requested int64) error {
	return pkgerrors.Wrap(pkgerrors.CodeStateConflict, ErrRefundExceedsRemaining, "refund exceeds remaining amount").
		WithDetails(map[string]any{
			"remaining_cents": remaining,
			"requested_cents": requested,
		})
}

// classify turns raw persistence failures into typed errors. Errors that are
// already typed pass through untouched.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil || errors.Is(err, errDuplicate) {
		return err
	}
	if db.IsTransientConflict(err) {
		return pkgerrors.Wrap(pkgerrors.CodePersistenceConflict, fmt.Errorf("%w: %w", ErrPersistenceConflict, err), op)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
