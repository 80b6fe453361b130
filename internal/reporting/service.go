package reporting

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/craftconnect/marketplace-backend/pkg/db/models"
	"github.com/craftconnect/marketplace-backend/pkg/enums"
	pkgerrors "github.com/craftconnect/marketplace-backend/pkg/errors"
	"github.com/craftconnect/marketplace-backend/pkg/pagination"
)

// Service exposes admin and seller reports over the ledger. Reads are not
// isolated from concurrent settlements.
type Service interface {
	Totals(ctx context.Context, filter Filter) (Totals, error)
	ByDay(ctx context.Context, filter Filter) ([]DayTotal, error)
	BySeller(ctx context.Context, filter Filter) ([]SellerTotal, error)
	ByCategory(ctx context.Context, filter Filter) ([]CategoryTotal, error)
	ByPaymentMethod(ctx context.Context, filter Filter) ([]PaymentMethodTotal, error)
	Dashboard(ctx context.Context, filter Filter) (*Dashboard, error)
	ListTransactions(ctx context.Context, params ListParams) (*TransactionPage, error)
	SellerBalance(ctx context.Context, sellerID uuid.UUID) (*models.SellerBalance, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "reporting repository required")
	}
	return &service{repo: repo}, nil
}

func validateFilter(filter Filter) error {
	if filter.From != nil && filter.To != nil && !filter.To.After(*filter.From) {
		return pkgerrors.New(pkgerrors.CodeValidation, "to must be after from")
	}
	if filter.SellerID != nil && *filter.SellerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "seller id is invalid")
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "status is invalid")
	}
	return nil
}

func (s *service) Totals(ctx context.Context, filter Filter) (Totals, error) {
	if err := validateFilter(filter); err != nil {
		return Totals{}, err
	}
	totals, err := s.repo.Totals(ctx, filter)
	if err != nil {
		return Totals{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load totals")
	}
	return totals, nil
}

func (s *service) ByDay(ctx context.Context, filter Filter) ([]DayTotal, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	rows, err := s.repo.ByDay(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load daily totals")
	}
	return rows, nil
}

func (s *service) BySeller(ctx context.Context, filter Filter) ([]SellerTotal, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	rows, err := s.repo.BySeller(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load seller totals")
	}
	return rows, nil
}

func (s *service) ByCategory(ctx context.Context, filter Filter) ([]CategoryTotal, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	rows, err := s.repo.ByCategory(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load category totals")
	}
	return rows, nil
}

func (s *service) ByPaymentMethod(ctx context.Context, filter Filter) ([]PaymentMethodTotal, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	rows, err := s.repo.ByPaymentMethod(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment method totals")
	}
	return rows, nil
}

// Dashboard loads totals, the daily series and the category breakdown
// concurrently. The first failure cancels the remaining queries.
func (s *service) Dashboard(ctx context.Context, filter Filter) (*Dashboard, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}

	var dashboard Dashboard
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		totals, err := s.repo.Totals(gctx, filter)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load totals")
		}
		dashboard.Totals = totals
		return nil
	})
	g.Go(func() error {
		rows, err := s.repo.ByDay(gctx, filter)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load daily totals")
		}
		dashboard.ByDay = rows
		return nil
	})
	g.Go(func() error {
		rows, err := s.repo.ByCategory(gctx, filter)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load category totals")
		}
		dashboard.ByCategory = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &dashboard, nil
}

func (s *service) ListTransactions(ctx context.Context, params ListParams) (*TransactionPage, error) {
	if err := validateFilter(params.Filter); err != nil {
		return nil, err
	}
	var cursor *pagination.Cursor
	if params.Cursor != "" {
		parsed, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		cursor = parsed
	}

	rows, next, err := s.repo.ListTransactions(ctx, params.Filter, params.Limit, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
	}

	page := &TransactionPage{Transactions: rows}
	if next != nil {
		page.NextCursor = pagination.EncodeCursor(*next)
	}
	return page, nil
}

// SellerBalance returns a zero balance for sellers that were never credited.
func (s *service) SellerBalance(ctx context.Context, sellerID uuid.UUID) (*models.SellerBalance, error) {
	if sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id is required")
	}
	balance, err := s.repo.SellerBalance(ctx, sellerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load seller balance")
	}
	if balance == nil {
		return &models.SellerBalance{SellerID: sellerID, Currency: enums.CurrencyPHP}, nil
	}
	return balance, nil
}
