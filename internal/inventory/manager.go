// Package inventory owns ticket holds and the per-tier inventory counters.
//
// Every counter change is a single conditional UPDATE whose WHERE clause
// carries the precondition, so two buyers racing for the last unit cannot
// both succeed regardless of isolation level. Hold status transitions are
// guarded the same way, which makes release, expiry, and conversion happen at
// most once per hold.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gatepass-backend/pkg/db/models"
	"github.com/angelmondragon/gatepass-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gatepass-backend/pkg/errors"
	"github.com/angelmondragon/gatepass-backend/pkg/logger"
	"github.com/angelmondragon/gatepass-backend/pkg/metrics"
)

// DefaultHoldTTL applies when a request carries no TTL.
const DefaultHoldTTL = 600 * time.Second

// HoldRequest describes one reservation attempt.
type HoldRequest struct {
	TierID      uuid.UUID
	UserID      uuid.UUID
	Fingerprint string
	Quantity    int
	TTL         time.Duration
}

// ManagerParams wires Manager dependencies.
type ManagerParams struct {
	DB      *gorm.DB
	Logger  *logger.Logger
	Metrics *metrics.HoldMetrics
	Now     func() time.Time
}

// Manager implements hold creation, release, conversion, and expiry. Methods
// that accept a tx run inside it (as a savepoint); a nil tx makes the manager
// open and commit its own transaction.
type Manager struct {
	db      *gorm.DB
	logg    *logger.Logger
	metrics *metrics.HoldMetrics
	now     func() time.Time
}

func NewManager(params ManagerParams) (*Manager, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		db:      params.DB,
		logg:    params.Logger,
		metrics: params.Metrics,
		now:     func() time.Time { return now().UTC() },
	}, nil
}

// CreateHold reserves req.Quantity units or fails with OUT_OF_STOCK. Past-due
// holds on the tier are expired first so their units count as available, and
// an active hold with the same (tier, user, fingerprint) is released and
// replaced.
func (m *Manager) CreateHold(ctx context.Context, tx *gorm.DB, req HoldRequest) (*models.TicketHold, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	ttl := req.TTL
	if ttl <= 0 {
		ttl = DefaultHoldTTL
	}

	if _, err := m.ExpireStale(ctx, tx, req.TierID); err != nil {
		return nil, err
	}

	var hold *models.TicketHold
	err := m.run(ctx, tx, func(tx *gorm.DB) error {
		if err := m.replaceExisting(tx, req); err != nil {
			return err
		}

		res := tx.Model(&models.TicketTier{}).
			Where("id = ? AND is_active = ? AND available_qty >= ?", req.TierID, true, req.Quantity).
			Updates(map[string]any{
				"available_qty": gorm.Expr("available_qty - ?", req.Quantity),
				"reserved_qty":  gorm.Expr("reserved_qty + ?", req.Quantity),
			})
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve inventory")
		}
		if res.RowsAffected == 0 {
			return pkgerrors.New(pkgerrors.CodeOutOfStock, "not enough tickets remaining").
				WithDetails(map[string]any{"tierId": req.TierID, "requested": req.Quantity})
		}

		now := m.now()
		hold = &models.TicketHold{
			TierID:      req.TierID,
			UserID:      req.UserID,
			Fingerprint: req.Fingerprint,
			Quantity:    req.Quantity,
			Status:      enums.HoldStatusActive,
			ExpiresAt:   now.Add(ttl),
		}
		if err := tx.Create(hold).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert hold")
		}
		return nil
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeOutOfStock) {
			m.metrics.OutOfStock()
		}
		return nil, err
	}
	m.metrics.Transition(string(enums.HoldStatusActive), 1)
	return hold, nil
}

// ReleaseHold returns a hold's units to the pool. Releasing a hold that is
// already released, converted, or expired is a no-op. A past-due hold is
// recorded as expired rather than released.
func (m *Manager) ReleaseHold(ctx context.Context, tx *gorm.DB, holdID uuid.UUID) error {
	return m.run(ctx, tx, func(tx *gorm.DB) error {
		hold, err := loadHold(tx, holdID)
		if err != nil {
			return err
		}
		if hold.Status.IsTerminal() {
			return nil
		}
		to := enums.HoldStatusReleased
		if hold.IsPastDue(m.now()) {
			to = enums.HoldStatusExpired
		}
		_, err = m.transition(tx, hold, to)
		return err
	})
}

// ReleaseAll releases every hold, continuing past failures, and returns the
// joined error.
func (m *Manager) ReleaseAll(ctx context.Context, holdIDs []uuid.UUID) error {
	var errs []error
	for _, id := range holdIDs {
		if err := m.ReleaseHold(ctx, nil, id); err != nil {
			errs = append(errs, fmt.Errorf("release hold %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// ConvertHoldToSale moves a hold's units from reserved to sold. Converting an
// already converted hold is a no-op.
func (m *Manager) ConvertHoldToSale(ctx context.Context, tx *gorm.DB, holdID uuid.UUID) error {
	var expired bool
	err := m.run(ctx, tx, func(tx *gorm.DB) error {
		hold, err := loadHold(tx, holdID)
		if err != nil {
			return err
		}
		switch hold.Status {
		case enums.HoldStatusConverted:
			return nil
		case enums.HoldStatusActive:
			if hold.IsPastDue(m.now()) {
				if _, err := m.transition(tx, hold, enums.HoldStatusExpired); err != nil {
					return err
				}
				expired = true
				return nil
			}
			moved, err := m.transition(tx, hold, enums.HoldStatusConverted)
			if err != nil {
				return err
			}
			if !moved {
				return pkgerrors.New(pkgerrors.CodeHoldExpired, "hold changed state during conversion")
			}
			return nil
		default:
			return pkgerrors.New(pkgerrors.CodeHoldExpired, "hold is no longer active").
				WithDetails(map[string]any{"holdId": holdID, "status": hold.Status})
		}
	})
	if err != nil {
		return err
	}
	if expired {
		return pkgerrors.New(pkgerrors.CodeHoldExpired, "hold expired").
			WithDetails(map[string]any{"holdId": holdID})
	}
	return nil
}

// SellDirect moves qty units straight from available to sold. Used when a
// payment confirmation outlives its hold.
func (m *Manager) SellDirect(ctx context.Context, tx *gorm.DB, tierID uuid.UUID, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	return m.run(ctx, tx, func(tx *gorm.DB) error {
		res := tx.Model(&models.TicketTier{}).
			Where("id = ? AND available_qty >= ?", tierID, qty).
			Updates(map[string]any{
				"available_qty": gorm.Expr("available_qty - ?", qty),
				"sold_qty":      gorm.Expr("sold_qty + ?", qty),
			})
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "sell inventory")
		}
		if res.RowsAffected == 0 {
			return pkgerrors.New(pkgerrors.CodeOutOfStock, "not enough tickets remaining").
				WithDetails(map[string]any{"tierId": tierID, "requested": qty})
		}
		return nil
	})
}

// Get returns a hold, reporting a past-due active hold as expired.
func (m *Manager) Get(ctx context.Context, tx *gorm.DB, holdID uuid.UUID) (*models.TicketHold, error) {
	conn := tx
	if conn == nil {
		conn = m.db
	}
	hold, err := loadHold(conn.WithContext(ctx), holdID)
	if err != nil {
		return nil, err
	}
	if hold.IsPastDue(m.now()) {
		hold.Status = enums.HoldStatusExpired
	}
	return hold, nil
}

// ExpireStale expires the tier's active holds whose TTL has passed.
func (m *Manager) ExpireStale(ctx context.Context, tx *gorm.DB, tierID uuid.UUID) (int, error) {
	var expired int
	err := m.run(ctx, tx, func(tx *gorm.DB) error {
		var holds []models.TicketHold
		if err := tx.Where("tier_id = ? AND status = ? AND expires_at <= ?", tierID, enums.HoldStatusActive, m.now()).
			Find(&holds).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stale holds")
		}
		for i := range holds {
			moved, err := m.transition(tx, &holds[i], enums.HoldStatusExpired)
			if err != nil {
				return err
			}
			if moved {
				expired++
			}
		}
		return nil
	})
	return expired, err
}

// DueHolds lists up to limit active holds whose TTL has passed.
func (m *Manager) DueHolds(ctx context.Context, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := m.db.WithContext(ctx).
		Model(&models.TicketHold{}).
		Where("status = ? AND expires_at <= ?", enums.HoldStatusActive, m.now()).
		Order("expires_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list due holds")
	}
	return ids, nil
}

// ExpireHold expires one hold if it is still active and past due. It reports
// whether the transition happened.
func (m *Manager) ExpireHold(ctx context.Context, holdID uuid.UUID) (bool, error) {
	var moved bool
	err := m.run(ctx, nil, func(tx *gorm.DB) error {
		hold, err := loadHold(tx, holdID)
		if err != nil {
			return err
		}
		if !hold.IsPastDue(m.now()) {
			return nil
		}
		moved, err = m.transition(tx, hold, enums.HoldStatusExpired)
		return err
	})
	return moved, err
}

// SweepExpired expires up to limit past-due holds, one transaction each, and
// returns the ids that actually transitioned. Failures on individual holds are
// joined into the returned error without stopping the sweep.
func (m *Manager) SweepExpired(ctx context.Context, limit int) ([]uuid.UUID, error) {
	due, err := m.DueHolds(ctx, limit)
	if err != nil {
		return nil, err
	}
	var (
		swept []uuid.UUID
		errs  []error
	)
	for _, id := range due {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		moved, err := m.ExpireHold(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("expire hold %s: %w", id, err))
			continue
		}
		if moved {
			swept = append(swept, id)
		}
	}
	return swept, errors.Join(errs...)
}

func (m *Manager) replaceExisting(tx *gorm.DB, req HoldRequest) error {
	var existing []models.TicketHold
	if err := tx.Where("tier_id = ? AND user_id = ? AND fingerprint = ? AND status = ?",
		req.TierID, req.UserID, req.Fingerprint, enums.HoldStatusActive).
		Find(&existing).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load existing holds")
	}
	for i := range existing {
		if _, err := m.transition(tx, &existing[i], enums.HoldStatusReleased); err != nil {
			return err
		}
	}
	return nil
}

// transition moves an active hold to a terminal status and applies the
// matching counter change. It returns false when another caller already
// moved the hold.
func (m *Manager) transition(tx *gorm.DB, hold *models.TicketHold, to enums.HoldStatus) (bool, error) {
	now := m.now()
	res := tx.Model(&models.TicketHold{}).
		Where("id = ? AND status = ?", hold.ID, enums.HoldStatusActive).
		Updates(map[string]any{"status": to, "resolved_at": now})
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update hold status")
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	updates := map[string]any{"reserved_qty": gorm.Expr("reserved_qty - ?", hold.Quantity)}
	if to == enums.HoldStatusConverted {
		updates["sold_qty"] = gorm.Expr("sold_qty + ?", hold.Quantity)
	} else {
		updates["available_qty"] = gorm.Expr("available_qty + ?", hold.Quantity)
	}
	res = tx.Model(&models.TicketTier{}).
		Where("id = ? AND reserved_qty >= ?", hold.TierID, hold.Quantity).
		Updates(updates)
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update tier counters")
	}
	if res.RowsAffected == 0 {
		return false, pkgerrors.New(pkgerrors.CodeInternal, "tier reserved count below hold quantity").
			WithDetails(map[string]any{"holdId": hold.ID, "tierId": hold.TierID})
	}

	hold.Status = to
	hold.ResolvedAt = &now
	m.metrics.Transition(string(to), 1)
	return true, nil
}

func (m *Manager) run(ctx context.Context, tx *gorm.DB, fn func(tx *gorm.DB) error) error {
	base := tx
	if base == nil {
		base = m.db
	}
	return base.WithContext(ctx).Transaction(fn)
}

func loadHold(tx *gorm.DB, holdID uuid.UUID) (*models.TicketHold, error) {
	var hold models.TicketHold
	err := tx.Where("id = ?", holdID).Take(&hold).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeHoldNotFound, "hold not found").
			WithDetails(map[string]any{"holdId": holdID})
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load hold")
	}
	return &hold, nil
}

func validateRequest(req HoldRequest) error {
	switch {
	case req.TierID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "tier id required")
	case req.UserID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	case strings.TrimSpace(req.Fingerprint) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "fingerprint required")
	case req.Quantity <= 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	return nil
}
