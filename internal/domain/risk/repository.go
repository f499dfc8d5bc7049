package risk

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is the append-only event store. There is no update or delete.
type Repository interface {
	Append(ctx context.Context, e *RiskEvent) error
	// ListSince returns events created at or after since, oldest first.
	// A nil userID lists every user.
	ListSince(ctx context.Context, userID *uuid.UUID, since time.Time) ([]*RiskEvent, error)
}

// Mirror receives a copy of every stored event (archive, stream)
type Mirror interface {
	Mirror(ctx context.Context, e RiskEvent) error
}
