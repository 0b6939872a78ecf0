package eventdata

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gatepass-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/gatepass-backend/pkg/errors"
	"github.com/angelmondragon/gatepass-backend/pkg/logger"
)

// Factory picks the repository for an event from its status.
type Factory struct {
	db     *gorm.DB
	live   Repository
	shadow Repository
}

func NewFactory(db *gorm.DB, logg *logger.Logger) (*Factory, error) {
	if db == nil {
		return nil, errors.New("db required")
	}
	return &Factory{
		db:     db,
		live:   NewLiveRepository(db, logg),
		shadow: NewShadowRepository(db, logg),
	}, nil
}

// ForEvent returns the shadow repository for test-status events and the
// live one otherwise, along with the event.
func (f *Factory) ForEvent(ctx context.Context, eventID uuid.UUID) (Repository, *models.Event, error) {
	var event models.Event
	err := f.db.WithContext(ctx).Select("id, organizer_id, name, status").Where("id = ?", eventID).First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "event not found")
	}
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load event")
	}
	if event.Status.IsTest() {
		return f.shadow, &event, nil
	}
	return f.live, &event, nil
}
