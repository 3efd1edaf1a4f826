package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Kilat-Pet-Delivery/service-parking/internal/domain/resource"
	"github.com/Kilat-Pet-Delivery/service-parking/internal/pkg/apperror"
)

// ResourceModel is the GORM model for the parking_resources table. Rows are managed by
// the listing service; this service only reads them.
type ResourceModel struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	OwnerID         uuid.UUID `gorm:"type:uuid;not null;index"`
	Name            string    `gorm:"type:varchar(200);not null"`
	HourlyRateCents int64     `gorm:"not null"`
	Currency        string    `gorm:"type:varchar(3);not null;default:'MYR'"`
	Active          bool      `gorm:"not null;default:true"`
	CreatedAt       time.Time `gorm:"type:timestamptz;not null;default:now()"`
	UpdatedAt       time.Time `gorm:"type:timestamptz;not null;default:now()"`
}

func (ResourceModel) TableName() string { return "parking_resources" }

// GormResourceRepository implements ResourceRepository using GORM.
type GormResourceRepository struct {
	db *gorm.DB
}

func NewGormResourceRepository(db *gorm.DB) *GormResourceRepository {
	return &GormResourceRepository{db: db}
}

func (r *GormResourceRepository) FindByID(ctx context.Context, id uuid.UUID) (*resource.Resource, error) {
	var model ResourceModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NewNotFoundError("Resource", id.String())
		}
		return nil, fmt.Errorf("failed to find resource: %w", err)
	}
	return toResourceDomain(&model), nil
}

// Upsert writes a resource row. Used for seeding and by integration tests.
func (r *GormResourceRepository) Upsert(ctx context.Context, res *resource.Resource) error {
	model := ResourceModel{
		ID:              res.ID(),
		OwnerID:         res.OwnerID(),
		Name:            res.Name(),
		HourlyRateCents: res.HourlyRateCents(),
		Currency:        res.Currency(),
		Active:          res.Active(),
		CreatedAt:       res.CreatedAt(),
		UpdatedAt:       res.UpdatedAt(),
	}
	if err := r.db.WithContext(ctx).Save(&model).Error; err != nil {
		return fmt.Errorf("failed to upsert resource: %w", err)
	}
	return nil
}

func toResourceDomain(m *ResourceModel) *resource.Resource {
	return resource.ReconstructResource(
		m.ID, m.OwnerID, m.Name, m.HourlyRateCents, m.Currency, m.Active, m.CreatedAt, m.UpdatedAt,
	)
}
