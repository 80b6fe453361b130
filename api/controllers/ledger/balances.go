package ledger

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/craftconnect/marketplace-backend/api/middleware"
	"github.com/craftconnect/marketplace-backend/api/responses"
	"github.com/craftconnect/marketplace-backend/pkg/db/models"
	pkgerrors "github.com/craftconnect/marketplace-backend/pkg/errors"
	"github.com/craftconnect/marketplace-backend/pkg/logger"
)

// BalanceReader resolves a seller's running balance. Sellers that were never
// credited read as zero.
type BalanceReader interface {
	SellerBalance(ctx context.Context, sellerID uuid.UUID) (*models.SellerBalance, error)
}

// AdminSellerBalance returns any seller's balance.
func AdminSellerBalance(svc BalanceReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sellerID, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "sellerId")))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid seller id"))
			return
		}
		writeBalance(ctx, svc, logg, w, sellerID)
	}
}

// MySellerBalance returns the balance of the seller bound to the token.
func MySellerBalance(svc BalanceReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sellerID, err := uuid.Parse(middleware.SellerIDFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "seller context required"))
			return
		}
		writeBalance(ctx, svc, logg, w, sellerID)
	}
}

func writeBalance(ctx context.Context, svc BalanceReader, logg *logger.Logger, w http.ResponseWriter, sellerID uuid.UUID) {
	balance, err := svc.SellerBalance(ctx, sellerID)
	if err != nil {
		responses.WriteError(ctx, logg, w, err)
		return
	}
	responses.WriteSuccess(w, newBalanceResponse(balance))
}
