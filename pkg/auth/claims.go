package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/gatepass-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.UserRole
	// EventIDs scopes staff and organizer tokens to the events they work.
	EventIDs []uuid.UUID
	JTI      string
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	UserID   uuid.UUID      `json:"user_id"`
	Role     enums.UserRole `json:"role"`
	EventIDs []uuid.UUID    `json:"event_ids,omitempty"`
	jwt.RegisteredClaims
}

// CanOperate reports whether the bearer may run door or organizer actions for eventID.
// Admins are unscoped.
func (c *AccessTokenClaims) CanOperate(eventID uuid.UUID) bool {
	if c == nil {
		return false
	}
	if c.Role == enums.UserRoleAdmin {
		return true
	}
	if c.Role != enums.UserRoleStaff && c.Role != enums.UserRoleOrganizer {
		return false
	}
	for _, id := range c.EventIDs {
		if id == eventID {
			return true
		}
	}
	return false
}
