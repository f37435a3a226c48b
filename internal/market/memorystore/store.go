package memorystore

import (
	"context"
	"sort"
	"sync"
	"time"

	"cryptostats/internal/market"

	"github.com/google/uuid"
)

// SnapshotStore keeps snapshots in process memory, newest first per asset.
type SnapshotStore struct {
	catalog market.Catalog
	now     func() time.Time

	globalMu sync.RWMutex
	data     map[string]*assetSnapshots
}

type assetSnapshots struct {
	mu        sync.Mutex
	snapshots []market.Snapshot // sorted by Timestamp descending
}

func NewSnapshotStore(catalog market.Catalog) *SnapshotStore {
	return &SnapshotStore{
		catalog: catalog,
		now:     time.Now,
		data:    make(map[string]*assetSnapshots),
	}
}

// Append validates and stores s. A zero Timestamp is set to the current time.
func (s *SnapshotStore) Append(ctx context.Context, snap market.Snapshot) (market.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return market.Snapshot{}, &market.StorageError{Op: "append", Err: err}
	}

	snap, err := s.catalog.Prepare(snap, s.now())
	if err != nil {
		return market.Snapshot{}, err
	}
	snap.ID = uuid.NewString()

	store := s.assetStore(snap.Asset)

	// Per-asset locking
	store.mu.Lock()
	defer store.mu.Unlock()

	// first index whose timestamp is not after snap's; equal timestamps keep insertion order newest first
	i := sort.Search(len(store.snapshots), func(i int) bool {
		return !store.snapshots[i].Timestamp.After(snap.Timestamp)
	})
	store.snapshots = append(store.snapshots, market.Snapshot{})
	copy(store.snapshots[i+1:], store.snapshots[i:])
	store.snapshots[i] = snap

	return snap, nil
}

// Latest returns the most recent snapshot for asset; ok is false when none exists.
func (s *SnapshotStore) Latest(ctx context.Context, asset string) (market.Snapshot, bool, error) {
	recent, err := s.Recent(ctx, asset, 1)
	if err != nil || len(recent) == 0 {
		return market.Snapshot{}, false, err
	}
	return recent[0], true, nil
}

// Recent returns up to limit snapshots for asset, newest first.
func (s *SnapshotStore) Recent(ctx context.Context, asset string, limit int) ([]market.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, &market.StorageError{Op: "recent", Err: err}
	}
	if limit <= 0 {
		return []market.Snapshot{}, nil
	}

	s.globalMu.RLock()
	store, ok := s.data[asset]
	s.globalMu.RUnlock()
	if !ok {
		return []market.Snapshot{}, nil
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	n := min(limit, len(store.snapshots))
	out := make([]market.Snapshot, n)
	copy(out, store.snapshots[:n])
	return out, nil
}

// CountAll returns the total number of snapshots stored across all assets.
func (s *SnapshotStore) CountAll() int {
	s.globalMu.RLock()
	defer s.globalMu.RUnlock()

	total := 0
	for _, store := range s.data {
		store.mu.Lock()
		total += len(store.snapshots)
		store.mu.Unlock()
	}
	return total
}

func (s *SnapshotStore) Close() error { return nil }

func (s *SnapshotStore) assetStore(asset string) *assetSnapshots {
	// Fast path: read lock only
	s.globalMu.RLock()
	store, ok := s.data[asset]
	s.globalMu.RUnlock()
	if ok {
		return store
	}

	s.globalMu.Lock()
	defer s.globalMu.Unlock()
	if store, ok = s.data[asset]; !ok {
		store = &assetSnapshots{}
		s.data[asset] = store
	}
	return store
}
