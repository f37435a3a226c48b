package stats

import (
	"context"

	"cryptostats/internal/market"
	"cryptostats/internal/market/updater"

	"go.uber.org/zap"
)

// DefaultWindow is the number of recent snapshots the deviation is computed over.
const DefaultWindow = 100

// Reader is the read side of the snapshot store.
type Reader interface {
	Latest(ctx context.Context, asset string) (market.Snapshot, bool, error)
	Recent(ctx context.Context, asset string, limit int) ([]market.Snapshot, error)
}

// Refresher runs a full update cycle.
type Refresher interface {
	RunUpdateCycle(ctx context.Context, trigger updater.Trigger) ([]market.Snapshot, error)
}

// RefreshPolicy bounds how many update cycles a single read may trigger when
// the store has nothing for the asset.
type RefreshPolicy struct {
	Retries int
}

// DefaultRefreshPolicy refreshes once, then gives up.
func DefaultRefreshPolicy() RefreshPolicy {
	return RefreshPolicy{Retries: 1}
}

// Service answers read queries over stored snapshots.
type Service struct {
	catalog   market.Catalog
	store     Reader
	refresher Refresher
	policy    RefreshPolicy
	window    int
	logger    *zap.Logger
}

type Option func(*Service)

func WithRefreshPolicy(p RefreshPolicy) Option {
	return func(s *Service) { s.policy = p }
}

func WithWindow(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.window = n
		}
	}
}

func NewService(catalog market.Catalog, store Reader, refresher Refresher, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		catalog:   catalog,
		store:     store,
		refresher: refresher,
		policy:    DefaultRefreshPolicy(),
		window:    DefaultWindow,
		logger:    logger.Named("stats"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Latest returns the newest stats for asset. On a miss it runs up to
// policy.Retries update cycles, re-reading the store after each one.
func (s *Service) Latest(ctx context.Context, asset string) (market.Stats, error) {
	if err := s.catalog.Validate(asset); err != nil {
		return market.Stats{}, err
	}

	snap, ok, err := s.store.Latest(ctx, asset)
	if err != nil {
		return market.Stats{}, err
	}
	if ok {
		return snap.View(), nil
	}

	var refreshErr error
	for attempt := 1; attempt <= s.policy.Retries; attempt++ {
		s.logger.Info("no stored snapshot, refreshing",
			zap.String("asset", asset),
			zap.Int("attempt", attempt),
		)

		if _, err := s.refresher.RunUpdateCycle(ctx, updater.TriggerOnMiss); err != nil {
			s.logger.Error("refresh on miss failed", zap.String("asset", asset), zap.Error(err))
			refreshErr = err
			continue
		}
		refreshErr = nil

		snap, ok, err = s.store.Latest(ctx, asset)
		if err != nil {
			return market.Stats{}, err
		}
		if ok {
			return snap.View(), nil
		}
	}

	return market.Stats{}, &market.NoDataError{Asset: asset, Err: refreshErr}
}

// Deviation returns the population standard deviation of the asset's price
// over the most recent window of snapshots, rounded to 2 decimal places.
func (s *Service) Deviation(ctx context.Context, asset string) (float64, error) {
	if err := s.catalog.Validate(asset); err != nil {
		return 0, err
	}

	snaps, err := s.store.Recent(ctx, asset, s.window)
	if err != nil {
		return 0, err
	}
	if len(snaps) == 0 {
		return 0, &market.NoDataError{Asset: asset}
	}

	prices := make([]float64, len(snaps))
	for i, snap := range snaps {
		prices[i] = snap.Price
	}
	return StdDev(prices), nil
}
