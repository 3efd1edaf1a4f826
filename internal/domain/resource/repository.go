package resource

import (
	"context"

	"github.com/google/uuid"
)

// ResourceRepository is the read-only view of parking spaces.
type ResourceRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Resource, error)
}
