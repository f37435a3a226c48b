package updater

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cryptostats/internal/market"
	"cryptostats/internal/metrics"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Trigger labels what started a cycle; used for logs and metrics only.
type Trigger string

const (
	TriggerBus     Trigger = "bus"
	TriggerManual  Trigger = "manual"
	TriggerOnMiss  Trigger = "refresh-on-miss"
	cycleFlightKey         = "update-cycle"
)

// ErrNoAssets is returned when the cycle has nothing to enumerate.
var ErrNoAssets = errors.New("no assets configured")

// Fetcher retrieves one asset's current snapshot from the market data provider.
type Fetcher interface {
	FetchSnapshot(ctx context.Context, providerID string) (market.Snapshot, error)
}

// Appender persists a snapshot.
type Appender interface {
	Append(ctx context.Context, s market.Snapshot) (market.Snapshot, error)
}

// Notifier is told about every stored snapshot.
type Notifier interface {
	Notify(s market.Snapshot)
}

type Config struct {
	// TaskTimeout bounds one asset's fetch-and-store task; zero means no bound.
	TaskTimeout time.Duration
	// Coalesce makes concurrent callers share the in-flight cycle instead of starting another.
	Coalesce bool
}

// Updater runs refresh cycles: one concurrent fetch-and-store task per catalog asset.
type Updater struct {
	catalog  market.Catalog
	fetcher  Fetcher
	store    Appender
	notifier Notifier
	cfg      Config
	metrics  *metrics.Recorder
	logger   *zap.Logger

	group singleflight.Group
}

func New(catalog market.Catalog, fetcher Fetcher, store Appender, cfg Config, recorder *metrics.Recorder, logger *zap.Logger) *Updater {
	return &Updater{
		catalog: catalog,
		fetcher: fetcher,
		store:   store,
		cfg:     cfg,
		metrics: recorder,
		logger:  logger.Named("updater"),
	}
}

// SetNotifier registers a receiver for stored snapshots.
func (u *Updater) SetNotifier(n Notifier) {
	u.notifier = n
}

// RunUpdateCycle fetches and stores a snapshot for every catalog asset and
// returns the ones that were stored. Per-asset failures are logged and left
// out of the result; an error means the cycle itself could not run.
//
// In-flight tasks are not cancelled when ctx is; they stay bounded by TaskTimeout.
func (u *Updater) RunUpdateCycle(ctx context.Context, trigger Trigger) ([]market.Snapshot, error) {
	if !u.cfg.Coalesce {
		return u.runCycle(ctx, trigger)
	}

	v, err, shared := u.group.Do(cycleFlightKey, func() (any, error) {
		return u.runCycle(ctx, trigger)
	})
	if err != nil {
		return nil, err
	}
	stored := v.([]market.Snapshot)
	if shared {
		u.logger.Debug("joined in-flight update cycle", zap.String("trigger", string(trigger)))
		out := make([]market.Snapshot, len(stored))
		copy(out, stored)
		return out, nil
	}
	return stored, nil
}

func (u *Updater) runCycle(ctx context.Context, trigger Trigger) ([]market.Snapshot, error) {
	start := time.Now()

	assets := u.catalog.Assets()
	if len(assets) == 0 {
		u.metrics.RecordUpdateCycle(string(trigger), "error", time.Since(start).Seconds())
		return nil, ErrNoAssets
	}

	u.logger.Info("running update cycle",
		zap.String("trigger", string(trigger)),
		zap.Int("assets", len(assets)),
	)

	taskCtx := context.WithoutCancel(ctx)

	// each task owns its slot; no other state is shared between tasks
	results := make([]market.Snapshot, len(assets))
	ok := make([]bool, len(assets))

	var wg sync.WaitGroup
	for i, asset := range assets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], ok[i] = u.updateAsset(taskCtx, asset)
		}()
	}
	wg.Wait()

	stored := make([]market.Snapshot, 0, len(assets))
	for i := range results {
		if ok[i] {
			stored = append(stored, results[i])
		}
	}

	u.logger.Info("update cycle complete",
		zap.String("trigger", string(trigger)),
		zap.Int("assets", len(assets)),
		zap.Int("stored", len(stored)),
		zap.Int("failed", len(assets)-len(stored)),
		zap.Duration("duration", time.Since(start)),
	)
	u.metrics.RecordUpdateCycle(string(trigger), "ok", time.Since(start).Seconds())
	return stored, nil
}

// updateAsset runs one asset's task. It never returns an error: failures are logged and reported as ok=false.
func (u *Updater) updateAsset(ctx context.Context, asset market.Asset) (stored market.Snapshot, ok bool) {
	log := u.logger.With(zap.String("asset", asset.ID))

	defer func() {
		if r := recover(); r != nil {
			log.Error("update task panicked", zap.Any("panic", r))
			stored, ok = market.Snapshot{}, false
		}
	}()

	if u.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.cfg.TaskTimeout)
		defer cancel()
	}

	snap, err := u.fetch(ctx, asset, log)
	if err != nil {
		return market.Snapshot{}, false
	}

	// stored under the canonical id even when the fallback provider id answered
	snap.Asset = asset.ID
	snap.Timestamp = time.Time{}

	stored, err = u.store.Append(ctx, snap)
	if err != nil {
		log.Error("failed to store snapshot", zap.Error(err))
		return market.Snapshot{}, false
	}

	u.metrics.RecordSnapshotStored(asset.ID)
	if u.notifier != nil {
		u.notifier.Notify(stored)
	}
	log.Info("stored snapshot", zap.String("price", fmt.Sprintf("$%.2f", stored.Price)))
	return stored, true
}

// fetch tries the primary provider id, then the fallback id if the asset has one.
func (u *Updater) fetch(ctx context.Context, asset market.Asset, log *zap.Logger) (market.Snapshot, error) {
	snap, err := u.fetcher.FetchSnapshot(ctx, asset.ID)
	if err == nil {
		return snap, nil
	}
	u.metrics.RecordFetchFailure(asset.ID, "primary")

	if asset.Fallback == "" {
		log.Error("failed to fetch snapshot", zap.Error(err))
		return market.Snapshot{}, err
	}

	log.Warn("primary fetch failed, trying fallback",
		zap.String("fallback", asset.Fallback),
		zap.Error(err),
	)
	snap, fbErr := u.fetcher.FetchSnapshot(ctx, asset.Fallback)
	if fbErr != nil {
		u.metrics.RecordFetchFailure(asset.ID, "fallback")
		log.Error("primary and fallback fetch failed",
			zap.String("fallback", asset.Fallback),
			zap.NamedError("primary_error", err),
			zap.NamedError("fallback_error", fbErr),
		)
		return market.Snapshot{}, fbErr
	}
	return snap, nil
}
