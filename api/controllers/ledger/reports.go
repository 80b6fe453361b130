package ledger

import (
	"context"
	"net/http"

	"github.com/craftconnect/marketplace-backend/api/responses"
	"github.com/craftconnect/marketplace-backend/api/validators"
	"github.com/craftconnect/marketplace-backend/internal/reporting"
	"github.com/craftconnect/marketplace-backend/pkg/logger"
)

const maxCategoryLength = 120

// parseFilter reads from, to, seller_id and category from the query string.
func parseFilter(r *http.Request) (reporting.Filter, error) {
	from, err := validators.ParseQueryTime(r, "from")
	if err != nil {
		return reporting.Filter{}, err
	}
	to, err := validators.ParseQueryTime(r, "to")
	if err != nil {
		return reporting.Filter{}, err
	}
	sellerID, err := validators.ParseQueryUUID(r, "seller_id")
	if err != nil {
		return reporting.Filter{}, err
	}
	return reporting.Filter{
		From:     from,
		To:       to,
		SellerID: sellerID,
		Category: validators.SanitizeString(r.URL.Query().Get("category"), maxCategoryLength),
	}, nil
}

func reportHandler[T any](logg *logger.Logger, run func(context.Context, reporting.Filter) (T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		filter, err := parseFilter(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		result, err := run(ctx, filter)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// Dashboard returns totals with the daily and category breakdowns.
func Dashboard(svc reporting.Service, logg *logger.Logger) http.HandlerFunc {
	return reportHandler(logg, svc.Dashboard)
}

func SellerReport(svc reporting.Service, logg *logger.Logger) http.HandlerFunc {
	return reportHandler(logg, func(ctx context.Context, filter reporting.Filter) (map[string]any, error) {
		rows, err := svc.BySeller(ctx, filter)
		if err != nil {
			return nil, err
		}
		return map[string]any{"sellers": rows}, nil
	})
}

func CategoryReport(svc reporting.Service, logg *logger.Logger) http.HandlerFunc {
	return reportHandler(logg, func(ctx context.Context, filter reporting.Filter) (map[string]any, error) {
		rows, err := svc.ByCategory(ctx, filter)
		if err != nil {
			return nil, err
		}
		return map[string]any{"categories": rows}, nil
	})
}

func PaymentMethodReport(svc reporting.Service, logg *logger.Logger) http.HandlerFunc {
	return reportHandler(logg, func(ctx context.Context, filter reporting.Filter) (map[string]any, error) {
		rows, err := svc.ByPaymentMethod(ctx, filter)
		if err != nil {
			return nil, err
		}
		return map[string]any{"payment_methods": rows}, nil
	})
}

// DailyReport buckets net amounts by UTC day.
func DailyReport(svc reporting.Service, logg *logger.Logger) http.HandlerFunc {
	return reportHandler(logg, func(ctx context.Context, filter reporting.Filter) (map[string]any, error) {
		rows, err := svc.ByDay(ctx, filter)
		if err != nil {
			return nil, err
		}
		return map[string]any{"days": rows}, nil
	})
}
