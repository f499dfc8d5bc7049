package redis

import (
	"context"
	"time"

	"github.com/google/uuid"

	"riskgate/internal/services/dailylimits"
	"riskgate/pkg/errors"
)

// Compile-time check
var _ dailylimits.BookingGuard = (*BookingGuard)(nil)

const bookingPrefix = "risk:limits:booked:"

// BookingGuard records which closed trades were already counted against a
// daily limit, shared by every engine instance and kept across restarts
type BookingGuard struct {
	kv keyValue
}

// NewBookingGuard creates a Redis-backed booking guard
func NewBookingGuard(kv keyValue) *BookingGuard {
	return &BookingGuard{kv: kv}
}

// Book marks the trade as counted. Returns false if it already was.
func (g *BookingGuard) Book(ctx context.Context, tradeID uuid.UUID, ttl time.Duration) (bool, error) {
	ok, err := g.kv.SetNX(ctx, bookingPrefix+tradeID.String(), time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "book trade loss")
	}
	return ok, nil
}
