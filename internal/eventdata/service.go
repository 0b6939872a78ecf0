package eventdata

import (
	"context"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/gatepass-backend/pkg/errors"
	"github.com/angelmondragon/gatepass-backend/pkg/pagination"
)

// Viewer is the caller of an organizer read. Admins see every event.
type Viewer struct {
	UserID uuid.UUID
	Admin  bool
}

// Service gates organizer reads on event ownership.
type Service struct {
	factory *Factory
}

func NewService(factory *Factory) *Service {
	return &Service{factory: factory}
}

func (s *Service) repoFor(ctx context.Context, viewer Viewer, eventID uuid.UUID) (Repository, error) {
	if viewer.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	repo, event, err := s.factory.ForEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !viewer.Admin && event.OrganizerID != viewer.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "event belongs to another organizer")
	}
	return repo, nil
}

func (s *Service) Attendees(ctx context.Context, viewer Viewer, eventID uuid.UUID) ([]Attendee, error) {
	repo, err := s.repoFor(ctx, viewer, eventID)
	if err != nil {
		return nil, err
	}
	list, err := repo.AllAttendees(ctx, eventID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read attendees")
	}
	return list, nil
}

func (s *Service) Orders(ctx context.Context, viewer Viewer, eventID uuid.UUID, params pagination.Params) (*OrderPage, error) {
	repo, err := s.repoFor(ctx, viewer, eventID)
	if err != nil {
		return nil, err
	}
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	page, err := repo.OrdersByEventID(ctx, eventID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read orders")
	}
	return page, nil
}

func (s *Service) RSVPCount(ctx context.Context, viewer Viewer, eventID uuid.UUID) (int64, error) {
	repo, err := s.repoFor(ctx, viewer, eventID)
	if err != nil {
		return 0, err
	}
	n, err := repo.RSVPCount(ctx, eventID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count rsvps")
	}
	return n, nil
}

func (s *Service) InterestCount(ctx context.Context, viewer Viewer, eventID uuid.UUID) (int64, error) {
	repo, err := s.repoFor(ctx, viewer, eventID)
	if err != nil {
		return 0, err
	}
	n, err := repo.InterestCount(ctx, eventID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count interests")
	}
	return n, nil
}
