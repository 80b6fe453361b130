package controllers

import (
	"net/http"

	"github.com/craftconnect/marketplace-backend/api/middleware"
	"github.com/craftconnect/marketplace-backend/api/responses"
)

// Ping answers with the scope it is mounted under and, when authenticated,
// the caller it resolved. Useful for checking tokens against each surface.
func Ping(scope string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]string{"scope": scope, "status": "ok"}
		p := middleware.PrincipalFromContext(r.Context())
		if p.UserID != "" {
			payload["user_id"] = p.UserID
		}
		if p.SellerID != "" {
			payload["seller_id"] = p.SellerID
		}
		responses.WriteSuccess(w, payload)
	}
}
