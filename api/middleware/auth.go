package middleware

import (
	"net/http"
	"strings"

	"github.com/craftconnect/marketplace-backend/api/responses"
	pkgAuth "github.com/craftconnect/marketplace-backend/pkg/auth"
	"github.com/craftconnect/marketplace-backend/pkg/config"
	pkgerrors "github.com/craftconnect/marketplace-backend/pkg/errors"
	"github.com/craftconnect/marketplace-backend/pkg/logger"
)

const bearerPrefix = "bearer "

// Auth validates a bearer token and seeds the request context with the
// resulting Principal.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			principal := Principal{UserID: claims.UserID.String(), Role: string(claims.Role)}
			if claims.SellerID != nil {
				principal.SellerID = claims.SellerID.String()
			}
			ctx := WithPrincipal(r.Context(), principal)
			if logg != nil {
				ctx = logg.WithFields(ctx, principal.logFields())
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken strips an optional "Bearer " scheme; bare tokens are accepted.
func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) >= len(bearerPrefix) && strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		header = header[len(bearerPrefix):]
	}
	return strings.TrimSpace(header)
}

func (p Principal) logFields() map[string]any {
	fields := map[string]any{
		"user_id":    p.UserID,
		"actor_role": p.Role,
	}
	if p.SellerID != "" {
		fields["seller_id"] = p.SellerID
	}
	return fields
}
