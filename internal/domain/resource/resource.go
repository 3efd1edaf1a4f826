// Package resource models the reservable parking space. The service only reads it.
package resource

import (
	"time"

	"github.com/google/uuid"
)

// Resource is a parking space that drivers can book by the hour.
type Resource struct {
	id              uuid.UUID
	ownerID         uuid.UUID
	name            string
	hourlyRateCents int64
	currency        string
	active          bool
	createdAt       time.Time
	updatedAt       time.Time
}

// ReconstructResource rebuilds a Resource from persistence data (no validation).
func ReconstructResource(
	id, ownerID uuid.UUID,
	name string,
	hourlyRateCents int64,
	currency string,
	active bool,
	createdAt, updatedAt time.Time,
) *Resource {
	return &Resource{
		id:              id,
		ownerID:         ownerID,
		name:            name,
		hourlyRateCents: hourlyRateCents,
		currency:        currency,
		active:          active,
		createdAt:       createdAt,
		updatedAt:       updatedAt,
	}
}

func (r *Resource) ID() uuid.UUID          { return r.id }
func (r *Resource) OwnerID() uuid.UUID     { return r.ownerID }
func (r *Resource) Name() string           { return r.name }
func (r *Resource) HourlyRateCents() int64 { return r.hourlyRateCents }
func (r *Resource) Currency() string       { return r.currency }
func (r *Resource) Active() bool           { return r.active }
func (r *Resource) CreatedAt() time.Time   { return r.createdAt }
func (r *Resource) UpdatedAt() time.Time   { return r.updatedAt }
