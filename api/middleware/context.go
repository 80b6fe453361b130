package middleware

import "context"

type principalKey struct{}

// Principal is the authenticated caller attached by Auth.
type Principal struct {
	UserID   string
	Role     string
	SellerID string
}

// WithPrincipal stores p on ctx, replacing any previous principal.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the caller, or the zero Principal for
// unauthenticated requests.
func PrincipalFromContext(ctx context.Context) Principal {
	if ctx == nil {
		return Principal{}
	}
	p, _ := ctx.Value(principalKey{}).(Principal)
	return p
}

func UserIDFromContext(ctx context.Context) string {
	return PrincipalFromContext(ctx).UserID
}

func RoleFromContext(ctx context.Context) string {
	return PrincipalFromContext(ctx).Role
}

// SellerIDFromContext returns the seller bound to a seller token, if any.
func SellerIDFromContext(ctx context.Context) string {
	return PrincipalFromContext(ctx).SellerID
}

// WithRole overrides the role on the current principal.
func WithRole(ctx context.Context, role string) context.Context {
	p := PrincipalFromContext(ctx)
	p.Role = role
	return WithPrincipal(ctx, p)
}
