package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/craftconnect/marketplace-backend/pkg/enums"
)

// AccessTokenPayload is what the issuing service supplies when minting.
type AccessTokenPayload struct {
	UserID   uuid.UUID
	Role     enums.ActorRole
	SellerID *uuid.UUID
}

// AccessTokenClaims is the JWT presented by admin and seller clients. Seller
// tokens are bound to exactly one seller.
type AccessTokenClaims struct {
	UserID   uuid.UUID       `json:"user_id"`
	Role     enums.ActorRole `json:"role"`
	SellerID *uuid.UUID      `json:"seller_id,omitempty"`
	jwt.RegisteredClaims
}

// Validate is called by jwt after the registered claims pass.
func (c AccessTokenClaims) Validate() error {
	return checkPrincipal(c.UserID, c.Role, c.SellerID)
}

func checkPrincipal(userID uuid.UUID, role enums.ActorRole, sellerID *uuid.UUID) error {
	if userID == uuid.Nil {
		return fmt.Errorf("user id required")
	}
	if !role.IsValid() {
		return fmt.Errorf("invalid actor role %q", role)
	}
	if role == enums.ActorRoleSeller && (sellerID == nil || *sellerID == uuid.Nil) {
		return fmt.Errorf("seller tokens require a seller id")
	}
	return nil
}
