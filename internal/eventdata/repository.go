// Package eventdata serves organizer reads about an event's orders and
// attendees. Events in test status read shadow tables whose identities carry
// ShadowPrefix; every other event reads the live tables. Factory.ForEvent is
// the only place that decides which.
package eventdata

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/gatepass-backend/pkg/enums"
	"github.com/angelmondragon/gatepass-backend/pkg/logger"
	"github.com/angelmondragon/gatepass-backend/pkg/pagination"
)

// Repository is implementation-agnostic; callers never learn which table
// set backs it.
type Repository interface {
	OrdersByEventID(ctx context.Context, eventID uuid.UUID, params pagination.Params) (*OrderPage, error)
	RSVPCount(ctx context.Context, eventID uuid.UUID) (int64, error)
	RSVPHolders(ctx context.Context, eventID uuid.UUID) ([]Attendee, error)
	InterestCount(ctx context.Context, eventID uuid.UUID) (int64, error)
	InterestedUsers(ctx context.Context, eventID uuid.UUID) ([]Attendee, error)
	TicketHolders(ctx context.Context, eventID uuid.UUID) ([]Attendee, error)
	GuestTicketHolders(ctx context.Context, eventID uuid.UUID) ([]Attendee, error)
	AllAttendees(ctx context.Context, eventID uuid.UUID) ([]Attendee, error)
}

type tableSet struct {
	users     string
	orders    string
	tickets   string
	rsvps     string
	interests string
	guests    string
	attendees string
	prefix    string
}

var (
	liveTables = tableSet{
		users:     "users",
		orders:    "orders",
		tickets:   "tickets",
		rsvps:     "rsvps",
		interests: "interests",
		guests:    "guest_tickets",
		attendees: "event_attendees",
	}
	shadowTables = tableSet{
		users:     "test_users",
		orders:    "test_orders",
		tickets:   "test_tickets",
		rsvps:     "test_rsvps",
		interests: "test_interests",
		guests:    "test_guest_tickets",
		attendees: "test_event_attendees",
		prefix:    ShadowPrefix,
	}
)

type repository struct {
	db     *gorm.DB
	tables tableSet
	logg   *logger.Logger
}

// NewLiveRepository reads production tables.
func NewLiveRepository(db *gorm.DB, logg *logger.Logger) Repository {
	return newRepository(db, liveTables, logg)
}

// NewShadowRepository reads the test_ tables and prefixes identities.
func NewShadowRepository(db *gorm.DB, logg *logger.Logger) Repository {
	return newRepository(db, shadowTables, logg)
}

func newRepository(db *gorm.DB, tables tableSet, logg *logger.Logger) *repository {
	if logg == nil {
		logg = logger.Nop()
	}
	return &repository{db: db, tables: tables, logg: logg}
}

func (r *repository) OrdersByEventID(ctx context.Context, eventID uuid.UUID, params pagination.Params) (*OrderPage, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	limit := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).
		Table(r.tables.orders).
		Select("id, user_id, total_cents, status, created_at, completed_at").
		Where("event_id = ?", eventID)
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}
	var rows []orderRow
	if err := query.Order("created_at DESC, id DESC").Limit(limit + 1).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("list %s: %w", r.tables.orders, err)
	}

	page := &OrderPage{Orders: make([]OrderSummary, 0, min(len(rows), limit))}
	if len(rows) > limit {
		last := rows[limit-1]
		id, err := uuid.Parse(last.ID)
		if err != nil {
			return nil, fmt.Errorf("order cursor id: %w", err)
		}
		page.Cursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: id})
		rows = rows[:limit]
	}
	for _, row := range rows {
		summary, err := toOrderSummary(row, r.tables.prefix)
		if err != nil {
			r.logg.Warn(ctx, fmt.Sprintf("skipping order row %s: %v", row.ID, err))
			continue
		}
		page.Orders = append(page.Orders, summary)
	}
	return page, nil
}

func (r *repository) RSVPCount(ctx context.Context, eventID uuid.UUID) (int64, error) {
	return r.count(ctx, r.tables.rsvps, eventID)
}

func (r *repository) InterestCount(ctx context.Context, eventID uuid.UUID) (int64, error) {
	return r.count(ctx, r.tables.interests, eventID)
}

func (r *repository) count(ctx context.Context, table string, eventID uuid.UUID) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Table(table).Where("event_id = ?", eventID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func (r *repository) RSVPHolders(ctx context.Context, eventID uuid.UUID) ([]Attendee, error) {
	return r.joinedUsers(ctx, r.tables.rsvps, SourceRSVP, 1, eventID)
}

func (r *repository) InterestedUsers(ctx context.Context, eventID uuid.UUID) ([]Attendee, error) {
	return r.joinedUsers(ctx, r.tables.interests, SourceInterest, 0, eventID)
}

// joinedUsers reads a (event_id, user_id, created_at) table joined to users.
func (r *repository) joinedUsers(ctx context.Context, table string, source AttendeeSource, quantity int, eventID uuid.UUID) ([]Attendee, error) {
	var rows []attendeeRow
	err := r.db.WithContext(ctx).
		Table(table+" AS s").
		Select("s.user_id, u.email, u.display_name, ? AS source, ? AS quantity, s.created_at AS joined_at", string(source), quantity).
		Joins("JOIN "+r.tables.users+" u ON u.id = s.user_id").
		Where("s.event_id = ?", eventID).
		Order("s.created_at ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", table, err)
	}
	return r.mapAttendees(ctx, rows), nil
}

// TicketHolders returns one entry per holder of a valid or used ticket, with
// Quantity counting their tickets.
func (r *repository) TicketHolders(ctx context.Context, eventID uuid.UUID) ([]Attendee, error) {
	type ticketRow struct {
		UserID      string
		Email       string
		DisplayName string
		CreatedAt   time.Time
	}
	var rows []ticketRow
	err := r.db.WithContext(ctx).
		Table(r.tables.tickets+" AS t").
		Select("t.user_id, u.email, u.display_name, t.created_at").
		Joins("JOIN "+r.tables.users+" u ON u.id = t.user_id").
		Where("t.event_id = ? AND t.status IN ?", eventID, []enums.TicketStatus{enums.TicketStatusValid, enums.TicketStatusUsed}).
		Order("t.created_at ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", r.tables.tickets, err)
	}

	byUser := make(map[string]int, len(rows))
	grouped := make([]attendeeRow, 0, len(rows))
	for _, row := range rows {
		if idx, ok := byUser[row.UserID]; ok {
			grouped[idx].Quantity++
			continue
		}
		userID := row.UserID
		byUser[userID] = len(grouped)
		grouped = append(grouped, attendeeRow{
			UserID:      &userID,
			Email:       row.Email,
			DisplayName: row.DisplayName,
			Source:      string(SourceTicket),
			Quantity:    1,
			JoinedAt:    row.CreatedAt,
		})
	}
	return r.mapAttendees(ctx, grouped), nil
}

func (r *repository) GuestTicketHolders(ctx context.Context, eventID uuid.UUID) ([]Attendee, error) {
	var rows []attendeeRow
	err := r.db.WithContext(ctx).
		Table(r.tables.guests).
		Select("user_id, email, guest_name AS display_name, ? AS source, quantity, created_at AS joined_at", string(SourceGuest)).
		Where("event_id = ?", eventID).
		Order("created_at ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", r.tables.guests, err)
	}
	return r.mapAttendees(ctx, rows), nil
}

// AllAttendees reads the consolidated attendee view and falls back to the
// four per-source reads in parallel when the view read fails. Both paths
// return the same rows in the same order.
func (r *repository) AllAttendees(ctx context.Context, eventID uuid.UUID) ([]Attendee, error) {
	var rows []attendeeRow
	err := r.db.WithContext(ctx).
		Table(r.tables.attendees).
		Select("user_id, email, display_name, source, quantity, joined_at").
		Where("event_id = ?", eventID).
		Scan(&rows).Error
	if err == nil {
		return sortAttendees(r.mapAttendees(ctx, rows)), nil
	}
	r.logg.Warn(ctx, fmt.Sprintf("attendee view %s unavailable, reading sources individually: %v", r.tables.attendees, err))
	return r.allAttendeesFanOut(ctx, eventID)
}

func (r *repository) allAttendeesFanOut(ctx context.Context, eventID uuid.UUID) ([]Attendee, error) {
	reads := []func(context.Context, uuid.UUID) ([]Attendee, error){
		r.TicketHolders,
		r.RSVPHolders,
		r.GuestTicketHolders,
		r.InterestedUsers,
	}
	results := make([][]Attendee, len(reads))
	g, gctx := errgroup.WithContext(ctx)
	for i, read := range reads {
		g.Go(func() error {
			rows, err := read(gctx, eventID)
			if err != nil {
				return err
			}
			results[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	all := make([]Attendee, 0)
	for _, rows := range results {
		all = append(all, rows...)
	}
	return sortAttendees(all), nil
}

func (r *repository) mapAttendees(ctx context.Context, rows []attendeeRow) []Attendee {
	out := make([]Attendee, 0, len(rows))
	for _, row := range rows {
		attendee, err := toAttendee(row, r.tables.prefix)
		if err != nil {
			r.logg.Warn(ctx, fmt.Sprintf("skipping attendee row: %v", err))
			continue
		}
		out = append(out, attendee)
	}
	return out
}

func sortAttendees(list []Attendee) []Attendee {
	slices.SortStableFunc(list, func(a, b Attendee) int {
		if c := a.JoinedAt.Compare(b.JoinedAt); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Source, b.Source); c != 0 {
			return c
		}
		return cmp.Compare(a.UserID, b.UserID)
	})
	return list
}

// ShadowTables lists the writable shadow tables, children before parents, so
// deleting in order never violates a foreign key.
func ShadowTables() []string {
	return []string{
		shadowTables.tickets,
		shadowTables.guests,
		shadowTables.rsvps,
		shadowTables.interests,
		shadowTables.orders,
		shadowTables.users,
	}
}
