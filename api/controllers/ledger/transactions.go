package ledger

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/craftconnect/marketplace-backend/api/responses"
	"github.com/craftconnect/marketplace-backend/api/validators"
	"github.com/craftconnect/marketplace-backend/internal/reporting"
	"github.com/craftconnect/marketplace-backend/pkg/db/models"
	"github.com/craftconnect/marketplace-backend/pkg/enums"
	pkgerrors "github.com/craftconnect/marketplace-backend/pkg/errors"
	"github.com/craftconnect/marketplace-backend/pkg/logger"
	"github.com/craftconnect/marketplace-backend/pkg/pagination"
)

// TransactionReader loads ledger rows by id or order.
type TransactionReader interface {
	GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	ListRefunds(ctx context.Context, originalID uuid.UUID) ([]models.Transaction, error)
	ListOrderTransactions(ctx context.Context, orderID uuid.UUID) ([]models.Transaction, error)
}

type transactionDetailResponse struct {
	TransactionResponse
	Refunds []TransactionResponse `json:"refunds,omitempty"`
}

type transactionPageResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
	NextCursor   string                `json:"next_cursor,omitempty"`
}

// ListTransactions pages through the ledger newest first. Failed attempts
// are listed only when asked for with ?status=failed.
func ListTransactions(svc reporting.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		filter, err := parseFilter(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if raw := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status"))); raw != "" {
			status, err := enums.ParseTransactionStatus(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			filter.Status = status
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		page, err := svc.ListTransactions(ctx, reporting.ListParams{
			Filter: filter,
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, transactionPageResponse{
			Transactions: newTransactionResponses(page.Transactions),
			NextCursor:   page.NextCursor,
		})
	}
}

// GetTransaction returns one ledger row. An original settlement also lists
// the refunds recorded against it.
func GetTransaction(svc TransactionReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "transactionId")))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction id"))
			return
		}

		txn, err := svc.GetTransaction(ctx, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		detail := transactionDetailResponse{TransactionResponse: *newTransactionResponse(txn)}
		if !txn.IsRefund() {
			refunds, err := svc.ListRefunds(ctx, txn.ID)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			detail.Refunds = newTransactionResponses(refunds)
		}
		responses.WriteSuccess(w, detail)
	}
}

// ListOrderTransactions returns the settlement, failures and refunds for one
// order, oldest first.
func ListOrderTransactions(svc TransactionReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		orderID, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "orderId")))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid order id"))
			return
		}

		txns, err := svc.ListOrderTransactions(ctx, orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"transactions": newTransactionResponses(txns)})
	}
}
