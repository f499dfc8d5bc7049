package profile

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the interface for risk profile persistence
type Repository interface {
	// GetActive returns the active version, or errors.ErrNotFound
	GetActive(ctx context.Context, userID uuid.UUID) (*RiskProfile, error)
	// Save stores a new version and supersedes the previous active one
	Save(ctx context.Context, p *RiskProfile) error
	// History returns every version for a user, newest first
	History(ctx context.Context, userID uuid.UUID) ([]*RiskProfile, error)
}
