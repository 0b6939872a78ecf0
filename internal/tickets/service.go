// Package tickets admits ticket holders at the door and lets buyers fetch
// the tickets an order minted.
package tickets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gatepass-backend/internal/activity"
	"github.com/angelmondragon/gatepass-backend/internal/qrcode"
	"github.com/angelmondragon/gatepass-backend/pkg/db/models"
	"github.com/angelmondragon/gatepass-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gatepass-backend/pkg/errors"
	"github.com/angelmondragon/gatepass-backend/pkg/logger"
	"github.com/angelmondragon/gatepass-backend/pkg/metrics"
	"github.com/angelmondragon/gatepass-backend/pkg/outbox"
	"github.com/angelmondragon/gatepass-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type tokenVerifier interface {
	Verify(token string) qrcode.Result
	VerifyForEvent(token string, eventID uuid.UUID) qrcode.Result
}

// ScanRequest is one door scan.
type ScanRequest struct {
	Token     string
	EventID   uuid.UUID
	ScannedBy uuid.UUID
}

// ScanResult describes an admitted ticket.
type ScanResult struct {
	TicketID uuid.UUID `json:"ticketId"`
	EventID  uuid.UUID `json:"eventId"`
	OrderID  uuid.UUID `json:"orderId"`
	HolderID uuid.UUID `json:"holderId"`
	TierID   uuid.UUID `json:"tierId"`
	UsedAt   time.Time `json:"usedAt"`
}

// VerifyResult reports whether a token is authentic and what state its
// ticket is in. It never mutates the ticket.
type VerifyResult struct {
	Valid    bool               `json:"valid"`
	Reason   string             `json:"reason,omitempty"`
	TicketID uuid.UUID          `json:"ticketId,omitempty"`
	EventID  uuid.UUID          `json:"eventId,omitempty"`
	Status   enums.TicketStatus `json:"status,omitempty"`
	UsedAt   *time.Time         `json:"usedAt,omitempty"`
}

// TicketView is what a buyer sees for one minted ticket.
type TicketView struct {
	ID      uuid.UUID          `json:"id"`
	EventID uuid.UUID          `json:"eventId"`
	TierID  uuid.UUID          `json:"tierId"`
	QRToken string             `json:"qrToken"`
	Status  enums.TicketStatus `json:"status"`
	UsedAt  *time.Time         `json:"usedAt,omitempty"`
}

type Service interface {
	Scan(ctx context.Context, req ScanRequest) (*ScanResult, error)
	Verify(ctx context.Context, token string) (*VerifyResult, error)
	OrderTickets(ctx context.Context, userID, orderID uuid.UUID) ([]TicketView, error)
}

type ServiceParams struct {
	Tx       txRunner
	Repo     Repository
	Verifier tokenVerifier
	Outbox   outboxPublisher
	Activity activity.Recorder
	Metrics  *metrics.ScanMetrics
	Logger   *logger.Logger
	Now      func() time.Time
}

type service struct {
	tx       txRunner
	repo     Repository
	verifier tokenVerifier
	outbox   outboxPublisher
	activity activity.Recorder
	metrics  *metrics.ScanMetrics
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Tx == nil:
		return nil, fmt.Errorf("tx runner required")
	case params.Repo == nil:
		return nil, fmt.Errorf("ticket repository required")
	case params.Verifier == nil:
		return nil, fmt.Errorf("qr verifier required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Activity == nil {
		params.Activity = activity.Nop{}
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &service{
		tx:       params.Tx,
		repo:     params.Repo,
		verifier: params.Verifier,
		outbox:   params.Outbox,
		activity: params.Activity,
		metrics:  params.Metrics,
		logg:     params.Logger,
		now:      params.Now,
	}, nil
}

// Scan admits the ticket behind token at eventID. Only the first scan of a
// valid ticket succeeds; later ones fail with TICKET_ALREADY_USED.
func (s *service) Scan(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	if req.EventID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}
	if req.ScannedBy == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "scanner identity required")
	}
	ctx = s.logg.WithEventID(ctx, req.EventID.String())

	result, err := s.scan(ctx, req)
	if err != nil {
		s.metrics.Observe(string(pkgerrors.CodeOf(err)))
		s.recordRejected(ctx, req, err)
		return nil, err
	}
	s.metrics.Observe("ok")
	s.activity.Record(ctx, activity.Entry{
		EventType:          enums.ActivityTicketScanned,
		Description:        "ticket admitted",
		ActorID:            &req.ScannedBy,
		TargetResourceType: "ticket",
		TargetResourceID:   result.TicketID.String(),
		Metadata: map[string]any{
			"eventId":  result.EventID.String(),
			"orderId":  result.OrderID.String(),
			"holderId": result.HolderID.String(),
		},
	})
	return result, nil
}

func (s *service) scan(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	verified := s.verifier.VerifyForEvent(req.Token, req.EventID)
	if !verified.Valid {
		return nil, invalidQR(verified.Error)
	}

	now := s.now().UTC()
	var result *ScanResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		admitted, err := repo.MarkUsed(ctx, verified.TicketID, req.EventID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark ticket used")
		}
		ticket, err := repo.FindByID(ctx, verified.TicketID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ticket")
		}
		if ticket == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "ticket not found")
		}
		if !admitted {
			return rejection(ticket, req.EventID)
		}

		result = &ScanResult{
			TicketID: ticket.ID,
			EventID:  ticket.EventID,
			OrderID:  ticket.OrderID,
			HolderID: ticket.UserID,
			TierID:   ticket.TierID,
			UsedAt:   now,
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTicketScanned,
			AggregateType: enums.AggregateTicket,
			AggregateID:   ticket.ID,
			Actor:         &outbox.ActorRef{UserID: req.ScannedBy},
			OccurredAt:    now,
			Data: payloads.TicketScannedEvent{
				TicketID:  ticket.ID,
				EventID:   ticket.EventID,
				ScannedBy: req.ScannedBy,
				ScannedAt: now,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// rejection explains why a ticket that passed signature checks was not
// admitted.
func rejection(ticket *models.Ticket, eventID uuid.UUID) error {
	if ticket.EventID != eventID {
		return invalidQR(qrcode.ErrWrongEvent)
	}
	switch ticket.Status {
	case enums.TicketStatusUsed:
		details := map[string]any{}
		if ticket.UsedAt != nil {
			details["usedAt"] = ticket.UsedAt.UTC()
		}
		return pkgerrors.New(pkgerrors.CodeTicketAlreadyUsed, "ticket already scanned").WithDetails(details)
	case enums.TicketStatusCancelled, enums.TicketStatusRefunded:
		return pkgerrors.New(pkgerrors.CodeTicketNotAdmissible, "ticket is not valid for entry").
			WithDetails(map[string]any{"status": ticket.Status})
	default:
		return pkgerrors.Newf(pkgerrors.CodeStateConflict, "ticket in unexpected status %s", ticket.Status)
	}
}

func invalidQR(reason error) error {
	if reason == nil {
		reason = qrcode.ErrMalformed
	}
	return pkgerrors.Wrap(pkgerrors.CodeInvalidQR, reason, "invalid ticket code").
		WithDetails(map[string]any{"reason": reason.Error()})
}

func (s *service) recordRejected(ctx context.Context, req ScanRequest, err error) {
	if pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		s.logg.Error(ctx, "ticket scan failed", err)
		return
	}
	s.activity.Record(ctx, activity.Entry{
		EventType:          enums.ActivityTicketRejected,
		Description:        "ticket rejected: " + string(pkgerrors.CodeOf(err)),
		ActorID:            &req.ScannedBy,
		TargetResourceType: "event",
		TargetResourceID:   req.EventID.String(),
		Metadata:           map[string]any{"code": string(pkgerrors.CodeOf(err))},
	})
}

// Verify checks a token's signature and reports its ticket's current state.
// An unauthentic token yields Valid=false rather than an error.
func (s *service) Verify(ctx context.Context, token string) (*VerifyResult, error) {
	verified := s.verifier.Verify(token)
	if !verified.Valid {
		reason := qrcode.ErrMalformed
		if verified.Error != nil {
			reason = verified.Error
		}
		return &VerifyResult{Valid: false, Reason: reason.Error()}, nil
	}
	ticket, err := s.repo.FindByID(ctx, verified.TicketID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ticket")
	}
	if ticket == nil || ticket.EventID != verified.EventID {
		return &VerifyResult{Valid: false, Reason: "ticket not found", TicketID: verified.TicketID, EventID: verified.EventID}, nil
	}
	return &VerifyResult{
		Valid:    ticket.Status == enums.TicketStatusValid,
		TicketID: ticket.ID,
		EventID:  ticket.EventID,
		Status:   ticket.Status,
		UsedAt:   ticket.UsedAt,
	}, nil
}

var errNotOwner = errors.New("order does not belong to user")

// OrderTickets lists the tickets minted for orderID when userID holds them.
func (s *service) OrderTickets(ctx context.Context, userID, orderID uuid.UUID) ([]TicketView, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	rows, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list order tickets")
	}
	views := make([]TicketView, 0, len(rows))
	for _, t := range rows {
		if t.UserID != userID {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, errNotOwner, "order not found")
		}
		views = append(views, TicketView{
			ID:      t.ID,
			EventID: t.EventID,
			TierID:  t.TierID,
			QRToken: t.QRToken,
			Status:  t.Status,
			UsedAt:  t.UsedAt,
		})
	}
	return views, nil
}
