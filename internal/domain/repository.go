package domain

import "context"

// SnapshotRepository persists the whole watchlist at once. Save must be atomic:
// readers see either the previous or the new snapshot.
type SnapshotRepository interface {
	Load(ctx context.Context) (WatchlistSnapshot, error)
	Save(ctx context.Context, snapshot WatchlistSnapshot) error
}
