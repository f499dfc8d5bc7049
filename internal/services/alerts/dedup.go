package alerts

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Deduper claims a cool-down window per dedup key. Claim returns the id of the
// alert that already owns the window when the key is taken.
type Deduper interface {
	Claim(ctx context.Context, key string, alertID uuid.UUID, ttl time.Duration) (owner uuid.UUID, claimed bool, err error)
	Release(ctx context.Context, key string) error
}

type claim struct {
	alertID uuid.UUID
	until   time.Time
}

// MemoryDeduper keeps cool-down windows in process
type MemoryDeduper struct {
	mu     sync.Mutex
	claims map[string]claim
	now    func() time.Time
}

// NewMemoryDeduper creates an in-process deduper
func NewMemoryDeduper(now func() time.Time) *MemoryDeduper {
	if now == nil {
		now = time.Now
	}
	return &MemoryDeduper{claims: make(map[string]claim), now: now}
}

// Claim implements Deduper
func (d *MemoryDeduper) Claim(ctx context.Context, key string, alertID uuid.UUID, ttl time.Duration) (uuid.UUID, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if c, ok := d.claims[key]; ok && now.Before(c.until) {
		return c.alertID, false, nil
	}
	d.claims[key] = claim{alertID: alertID, until: now.Add(ttl)}

	// opportunistic cleanup keeps the map bounded by live windows
	if len(d.claims) > 1024 {
		for k, c := range d.claims {
			if !now.Before(c.until) {
				delete(d.claims, k)
			}
		}
	}
	return alertID, true, nil
}

// Release implements Deduper
func (d *MemoryDeduper) Release(ctx context.Context, key string) error {
	d.mu.Lock()
	delete(d.claims, key)
	d.mu.Unlock()
	return nil
}
