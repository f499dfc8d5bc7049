package limits

import "context"

// Repository persists limit snapshots. Saves carry a version and
// implementations must ignore a snapshot older than the stored one.
type Repository interface {
	Save(ctx context.Context, l *DynamicLimit) error
	List(ctx context.Context) ([]*DynamicLimit, error)
}
