package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/gatepass-backend/api/responses"
	"github.com/angelmondragon/gatepass-backend/api/validators"
	checkoutsvc "github.com/angelmondragon/gatepass-backend/internal/checkout"
	pkgerrors "github.com/angelmondragon/gatepass-backend/pkg/errors"
	"github.com/angelmondragon/gatepass-backend/pkg/logger"
)

type checkoutItemRequest struct {
	Type         string     `json:"type" validate:"required,oneof=ticket product"`
	TicketTierID *uuid.UUID `json:"ticketTierId,omitempty" validate:"required_if=Type ticket"`
	ProductID    *uuid.UUID `json:"productId,omitempty" validate:"required_if=Type product"`
	Quantity     int        `json:"quantity" validate:"required,min=1,max=50"`
}

type checkoutRequest struct {
	EventID     uuid.UUID             `json:"eventId" validate:"required"`
	Items       []checkoutItemRequest `json:"items" validate:"required,min=1,max=25,dive"`
	Fingerprint string                `json:"fingerprint" validate:"required,max=128"`
}

func (req checkoutRequest) toRequest(userID uuid.UUID) (checkoutsvc.Request, error) {
	lines := make([]checkoutsvc.CartLine, 0, len(req.Items))
	for _, item := range req.Items {
		kind, err := checkoutsvc.ParseLineKind(item.Type)
		if err != nil {
			return checkoutsvc.Request{}, err
		}
		switch kind {
		case checkoutsvc.LineTicket:
			lines = append(lines, checkoutsvc.TicketLine(derefUUID(item.TicketTierID), item.Quantity))
		case checkoutsvc.LineProduct:
			lines = append(lines, checkoutsvc.ProductLine(derefUUID(item.ProductID), item.Quantity))
		default:
			return checkoutsvc.Request{}, pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported item type %q", item.Type)
		}
	}
	return checkoutsvc.Request{
		UserID:      userID,
		EventID:     req.EventID,
		Items:       lines,
		Fingerprint: validators.SanitizeString(req.Fingerprint, 128),
	}, nil
}

func derefUUID(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}

// Checkout holds the requested tickets and either completes a free order or
// opens a payment session.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		claims, err := callerClaims(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		req, err := payload.toRequest(claims.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Checkout(r.Context(), req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
