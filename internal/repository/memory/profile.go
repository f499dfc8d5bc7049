package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"riskgate/internal/domain/profile"
	"riskgate/pkg/errors"
)

// Compile-time check
var _ profile.Repository = (*ProfileRepository)(nil)

// ProfileRepository keeps profile versions in memory
type ProfileRepository struct {
	mu       sync.RWMutex
	versions map[uuid.UUID][]*profile.RiskProfile
}

// NewProfileRepository creates an empty repository
func NewProfileRepository() *ProfileRepository {
	return &ProfileRepository{versions: make(map[uuid.UUID][]*profile.RiskProfile)}
}

// GetActive returns the active version
func (r *ProfileRepository) GetActive(ctx context.Context, userID uuid.UUID) (*profile.RiskProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.versions[userID] {
		if p.Status == profile.StatusActive {
			return p.Clone(), nil
		}
	}
	return nil, errors.ErrNotFound
}

// Save appends a version and supersedes the previous active one
func (r *ProfileRepository) Save(ctx context.Context, p *profile.RiskProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.versions[p.UserID] {
		if existing.Status == profile.StatusActive {
			existing.Status = profile.StatusSuperseded
			existing.UpdatedAt = p.CreatedAt
		}
	}
	stored := p.Clone()
	stored.Status = profile.StatusActive
	r.versions[p.UserID] = append(r.versions[p.UserID], stored)
	return nil
}

// History returns every version, newest first
func (r *ProfileRepository) History(ctx context.Context, userID uuid.UUID) ([]*profile.RiskProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*profile.RiskProfile, 0, len(r.versions[userID]))
	for _, p := range r.versions[userID] {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}
