package ledger

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/craftconnect/marketplace-backend/api/middleware"
	"github.com/craftconnect/marketplace-backend/api/responses"
	"github.com/craftconnect/marketplace-backend/api/validators"
	ledgersvc "github.com/craftconnect/marketplace-backend/internal/ledger"
	pkgerrors "github.com/craftconnect/marketplace-backend/pkg/errors"
	"github.com/craftconnect/marketplace-backend/pkg/logger"
)

const maxRefundReasonLength = 500

// RefundService is the ledger surface used by the admin refund endpoint.
type RefundService interface {
	Refund(ctx context.Context, input ledgersvc.RefundInput) (*ledgersvc.RefundResult, error)
}

type refundRequest struct {
	AmountMinorUnits *int64 `json:"amount_minor_units" validate:"omitempty,gt=0"`
	Reason           string `json:"reason" validate:"max=500"`
}

// CreateRefund reverses part or all of a succeeded transaction. An omitted
// amount refunds everything still outstanding.
func CreateRefund(svc RefundService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		transactionID, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "transactionId")))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction id"))
			return
		}

		var req refundRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.Refund(ctx, ledgersvc.RefundInput{
			TransactionID:  transactionID,
			AmountCents:    req.AmountMinorUnits,
			Reason:         validators.SanitizeString(req.Reason, maxRefundReasonLength),
			IdempotencyKey: r.Header.Get("Idempotency-Key"),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(logg.WithFields(ctx, map[string]any{
				"refund_transaction_id": result.Refund.ID.String(),
				"admin_user_id":         middleware.UserIDFromContext(ctx),
				"outcome":               string(result.Outcome),
			}), "refund.completed")
		}

		status := http.StatusCreated
		if result.Outcome == ledgersvc.OutcomeAlreadyProcessed {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, RefundResponse{
			Outcome:       string(result.Outcome),
			Refund:        newTransactionResponse(result.Refund),
			Original:      newTransactionResponse(result.Original),
			SellerBalance: newBalanceResponse(result.SellerBalance),
		})
	}
}
