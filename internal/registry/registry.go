package registry

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"riskgate/internal/domain/position"
	"riskgate/internal/domain/profile"
)

// Phase of a monitored position. Closed positions are removed from the registry.
type Phase string

const (
	PhaseOpen    Phase = "open"
	PhaseClosing Phase = "closing"
)

// TrackedPosition is the monitor's view of one position
type TrackedPosition struct {
	Position position.Position
	Phase    Phase

	// StopLossFired is set exactly once per position; the close command
	// is issued only by the caller that flipped it.
	StopLossFired bool
	FiredAt       time.Time
	Trigger       string
	CloseInFlight bool
	CloseAcked    bool
	CloseAttempts int
}

// User holds the in-memory risk state of one user. All fields are guarded by
// the user's lock; use Registry.Update / Registry.View to access them.
type User struct {
	UserID    uuid.UUID
	PlanTier  string
	Profile   *profile.RiskProfile
	Positions map[uuid.UUID]*TrackedPosition

	// Closed remembers positions confirmed closed or stop-lossed and then
	// dropped, so a stale ledger snapshot cannot bring them back as open.
	Closed map[uuid.UUID]time.Time

	Evaluations int64
	Blocked     int64
	StopLosses  int64

	ActivatedAt  time.Time
	LastSyncedAt time.Time
}

type userEntry struct {
	mu   sync.Mutex
	user User
}

type shard struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*userEntry
}

// Registry is the sharded map of per-user state. The shard lock only guards
// membership; per-user state has its own lock so users never contend.
type Registry struct {
	shards []*shard
	mask   uint32
}

// New creates a registry with at least n shards, rounded up to a power of two
func New(n int) *Registry {
	size := 1
	for size < n {
		size <<= 1
	}
	r := &Registry{shards: make([]*shard, size), mask: uint32(size - 1)}
	for i := range r.shards {
		r.shards[i] = &shard{users: make(map[uuid.UUID]*userEntry)}
	}
	return r
}

func (r *Registry) shardFor(userID uuid.UUID) *shard {
	h := fnv.New32a()
	_, _ = h.Write(userID[:])
	return r.shards[h.Sum32()&r.mask]
}

func (r *Registry) entry(userID uuid.UUID) (*userEntry, bool) {
	s := r.shardFor(userID)
	s.mu.RLock()
	e, ok := s.users[userID]
	s.mu.RUnlock()
	return e, ok
}

// Activate registers a user for monitoring. Returns false if already present.
func (r *Registry) Activate(userID uuid.UUID, plan string, now time.Time) bool {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; ok {
		return false
	}
	s.users[userID] = &userEntry{user: User{
		UserID:      userID,
		PlanTier:    plan,
		Positions:   make(map[uuid.UUID]*TrackedPosition),
		Closed:      make(map[uuid.UUID]time.Time),
		ActivatedAt: now,
	}}
	return true
}

// Deactivate stops monitoring a user. Returns false if the user was unknown.
func (r *Registry) Deactivate(userID uuid.UUID) bool {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return false
	}
	delete(s.users, userID)
	return true
}

// Contains reports whether the user is monitored
func (r *Registry) Contains(userID uuid.UUID) bool {
	_, ok := r.entry(userID)
	return ok
}

// Update runs fn under the user's lock. Returns false if the user is unknown.
// fn must not block on I/O.
func (r *Registry) Update(userID uuid.UUID, fn func(u *User)) bool {
	e, ok := r.entry(userID)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.user)
	return true
}

// View is Update for read-only access
func (r *Registry) View(userID uuid.UUID, fn func(u User)) bool {
	e, ok := r.entry(userID)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.user)
	return true
}

// UserIDs returns a snapshot of monitored users
func (r *Registry) UserIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, r.Len())
	for _, s := range r.shards {
		s.mu.RLock()
		for id := range s.users {
			ids = append(ids, id)
		}
		s.mu.RUnlock()
	}
	return ids
}

// Len returns the number of monitored users
func (r *Registry) Len() int {
	n := 0
	for _, s := range r.shards {
		s.mu.RLock()
		n += len(s.users)
		s.mu.RUnlock()
	}
	return n
}

// Totals aggregates counters across users
type Totals struct {
	Users       int
	Positions   int
	Evaluations int64
	Blocked     int64
	StopLosses  int64
}

// Totals walks every user. Users are locked one at a time.
func (r *Registry) Totals() Totals {
	var t Totals
	for _, id := range r.UserIDs() {
		r.View(id, func(u User) {
			t.Users++
			t.Positions += len(u.Positions)
			t.Evaluations += u.Evaluations
			t.Blocked += u.Blocked
			t.StopLosses += u.StopLosses
		})
	}
	return t
}
