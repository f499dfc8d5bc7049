package profiles

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskgate/internal/domain/profile"
	"riskgate/internal/repository/memory"
	"riskgate/pkg/errors"
	"riskgate/pkg/logger"
	"riskgate/pkg/retry"
)

// flakyRepository fails the first n saves
type flakyRepository struct {
	*memory.ProfileRepository
	failures int32
	saves    int32
}

func (r *flakyRepository) Save(ctx context.Context, p *profile.RiskProfile) error {
	atomic.AddInt32(&r.saves, 1)
	if atomic.AddInt32(&r.failures, -1) >= 0 {
		return errors.ErrTransientStore
	}
	return r.ProfileRepository.Save(ctx, p)
}

func fastRetrier() *retry.Retrier {
	return retry.New(retry.Config{Attempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond})
}

func newStore(repo profile.Repository) *Store {
	return NewStore(repo, fastRetrier(), logger.Nop())
}

func TestEnsureDefault_CreatesOnce(t *testing.T) {
	repo := &flakyRepository{ProfileRepository: memory.NewProfileRepository()}
	s := newStore(repo)
	userID := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := s.EnsureDefault(context.Background(), userID, "premium")
			assert.NoError(t, err)
			assert.Equal(t, profile.TierHigh, p.Tier)
		}()
	}
	wg.Wait()

	history, err := repo.History(context.Background(), userID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestGet_UnknownUser(t *testing.T) {
	s := newStore(memory.NewProfileRepository())
	_, err := s.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestUpdate_ValidPatch(t *testing.T) {
	ctx := context.Background()
	s := newStore(memory.NewProfileRepository())
	userID := uuid.New()
	_, err := s.EnsureDefault(ctx, userID, "medium")
	require.NoError(t, err)

	sl := decimal.RequireFromString("0.02")
	updated, err := s.Update(ctx, userID, profile.Patch{StopLossFraction: &sl})
	require.NoError(t, err)
	assert.Equal(t, profile.TierCustom, updated.Tier)
	assert.Equal(t, 2, updated.Version)

	got, err := s.Get(ctx, userID)
	require.NoError(t, err)
	assert.True(t, sl.Equal(got.StopLossFraction))
}

func TestUpdate_InvalidPatchKeepsProfile(t *testing.T) {
	ctx := context.Background()
	s := newStore(memory.NewProfileRepository())
	userID := uuid.New()
	before, err := s.EnsureDefault(ctx, userID, "free")
	require.NoError(t, err)

	bad := decimal.RequireFromString("1.5")
	_, err = s.Update(ctx, userID, profile.Patch{MaxPositionSizeFraction: &bad})
	assert.ErrorIs(t, err, errors.ErrInvalidProfile)

	zero := 0
	_, err = s.Update(ctx, userID, profile.Patch{MaxConcurrentTrades: &zero})
	assert.ErrorIs(t, err, errors.ErrInvalidProfile)

	_, err = s.Update(ctx, userID, profile.Patch{})
	assert.ErrorIs(t, err, errors.ErrInvalidProfile)

	after, err := s.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, before.ID, after.ID)
}

func TestUpdate_UnknownUser(t *testing.T) {
	s := newStore(memory.NewProfileRepository())
	trades := 2
	_, err := s.Update(context.Background(), uuid.New(), profile.Patch{MaxConcurrentTrades: &trades})
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestSave_RetriesTransientFailures(t *testing.T) {
	repo := &flakyRepository{ProfileRepository: memory.NewProfileRepository(), failures: 2}
	s := newStore(repo)

	_, err := s.EnsureDefault(context.Background(), uuid.New(), "medium")
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&repo.saves))
}

func TestSave_GivesUpAfterBudget(t *testing.T) {
	repo := &flakyRepository{ProfileRepository: memory.NewProfileRepository(), failures: 10}
	s := newStore(repo)

	_, err := s.EnsureDefault(context.Background(), uuid.New(), "medium")
	assert.ErrorIs(t, err, errors.ErrTransientStore)
	assert.Equal(t, int32(3), atomic.LoadInt32(&repo.saves))
}
