package profiles

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"riskgate/internal/domain/profile"
	"riskgate/pkg/errors"
	"riskgate/pkg/logger"
	"riskgate/pkg/retry"
)

// Store serves risk profiles from a read-through cache over the repository.
// Profiles change rarely, so the cache is only invalidated by Update.
type Store struct {
	repo    profile.Repository
	retrier *retry.Retrier
	log     *logger.Logger
	now     func() time.Time

	mu    sync.RWMutex
	cache map[uuid.UUID]*profile.RiskProfile
	group singleflight.Group
}

// NewStore creates a profile store
func NewStore(repo profile.Repository, retrier *retry.Retrier, log *logger.Logger) *Store {
	return &Store{
		repo:    repo,
		retrier: retrier,
		log:     log.Named("profiles"),
		now:     time.Now,
		cache:   make(map[uuid.UUID]*profile.RiskProfile),
	}
}

// WithClock overrides the time source (tests)
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Get returns the active profile or errors.ErrNotFound
func (s *Store) Get(ctx context.Context, userID uuid.UUID) (*profile.RiskProfile, error) {
	s.mu.RLock()
	cached, ok := s.cache[userID]
	s.mu.RUnlock()
	if ok {
		return cached.Clone(), nil
	}

	p, err := s.repo.GetActive(ctx, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "get profile for %s", userID)
	}
	s.put(p)
	return p.Clone(), nil
}

// EnsureDefault returns the active profile, creating the plan default when the user has none.
// Concurrent first calls for the same user create a single profile.
func (s *Store) EnsureDefault(ctx context.Context, userID uuid.UUID, plan string) (*profile.RiskProfile, error) {
	v, err, _ := s.group.Do(userID.String(), func() (interface{}, error) {
		p, err := s.Get(ctx, userID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, errors.ErrNotFound) {
			return nil, err
		}

		def := profile.Default(userID, plan, s.now().UTC())
		if err := s.save(ctx, &def); err != nil {
			return nil, err
		}
		s.log.Infow("Created default risk profile",
			"user_id", userID,
			"plan", def.PlanTier,
			"tier", def.Tier,
			"risk_score", def.RiskScore.String(),
		)
		return def.Clone(), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*profile.RiskProfile).Clone(), nil
}

// Update applies a partial patch and stores the result as a new version.
// Invalid values fail with errors.ErrInvalidProfile and leave the active profile untouched.
func (s *Store) Update(ctx context.Context, userID uuid.UUID, patch profile.Patch) (*profile.RiskProfile, error) {
	if patch.Empty() {
		return nil, errors.Wrap(errors.ErrInvalidProfile, "empty update")
	}

	current, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	next := current.Apply(patch, s.now().UTC())
	if err := next.Validate(); err != nil {
		return nil, err
	}

	if err := s.save(ctx, &next); err != nil {
		return nil, err
	}

	s.log.Infow("Risk profile updated",
		"user_id", userID,
		"version", next.Version,
		"tier", next.Tier,
		"risk_score", next.RiskScore.String(),
	)
	return next.Clone(), nil
}

// History returns all versions, newest first
func (s *Store) History(ctx context.Context, userID uuid.UUID) ([]*profile.RiskProfile, error) {
	return s.repo.History(ctx, userID)
}

// Forget drops a user from the cache
func (s *Store) Forget(userID uuid.UUID) {
	s.mu.Lock()
	delete(s.cache, userID)
	s.mu.Unlock()
}

func (s *Store) save(ctx context.Context, p *profile.RiskProfile) error {
	err := s.retrier.Do(ctx, func(ctx context.Context) error {
		return s.repo.Save(ctx, p)
	})
	if err != nil {
		return errors.Wrap(err, "save risk profile")
	}
	s.put(p)
	return nil
}

func (s *Store) put(p *profile.RiskProfile) {
	s.mu.Lock()
	s.cache[p.UserID] = p.Clone()
	s.mu.Unlock()
}
