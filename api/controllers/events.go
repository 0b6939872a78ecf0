package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/gatepass-backend/api/responses"
	"github.com/angelmondragon/gatepass-backend/api/validators"
	"github.com/angelmondragon/gatepass-backend/internal/eventdata"
	"github.com/angelmondragon/gatepass-backend/pkg/enums"
	"github.com/angelmondragon/gatepass-backend/pkg/logger"
	"github.com/angelmondragon/gatepass-backend/pkg/pagination"
)

// EventReader serves organizer reads about one event.
type EventReader interface {
	Attendees(ctx context.Context, viewer eventdata.Viewer, eventID uuid.UUID) ([]eventdata.Attendee, error)
	Orders(ctx context.Context, viewer eventdata.Viewer, eventID uuid.UUID, params pagination.Params) (*eventdata.OrderPage, error)
	RSVPCount(ctx context.Context, viewer eventdata.Viewer, eventID uuid.UUID) (int64, error)
	InterestCount(ctx context.Context, viewer eventdata.Viewer, eventID uuid.UUID) (int64, error)
}

func eventRequest(r *http.Request) (eventdata.Viewer, uuid.UUID, error) {
	claims, err := callerClaims(r)
	if err != nil {
		return eventdata.Viewer{}, uuid.Nil, err
	}
	eventID, err := uuidParam(r, "eventId")
	if err != nil {
		return eventdata.Viewer{}, uuid.Nil, err
	}
	return eventdata.Viewer{UserID: claims.UserID, Admin: claims.Role == enums.UserRoleAdmin}, eventID, nil
}

func EventAttendees(svc EventReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer, eventID, err := eventRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		attendees, err := svc.Attendees(r.Context(), viewer, eventID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"attendees": attendees, "count": len(attendees)})
	}
}

func EventOrders(svc EventReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer, eventID, err := eventRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.Orders(r.Context(), viewer, eventID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func EventRSVPCount(svc EventReader, logg *logger.Logger) http.HandlerFunc {
	return eventCount(logg, svc.RSVPCount)
}

func EventInterestCount(svc EventReader, logg *logger.Logger) http.HandlerFunc {
	return eventCount(logg, svc.InterestCount)
}

func eventCount(logg *logger.Logger, count func(context.Context, eventdata.Viewer, uuid.UUID) (int64, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer, eventID, err := eventRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		n, err := count(r.Context(), viewer, eventID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int64{"count": n})
	}
}

var _ EventReader = (*eventdata.Service)(nil)
