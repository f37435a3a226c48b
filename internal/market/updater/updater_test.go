package updater

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cryptostats/internal/market"
	"cryptostats/internal/market/memorystore"
	"cryptostats/internal/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errProvider = errors.New("provider unavailable")

// stubFetcher answers from a fixed table; ids missing from the table fail.
type stubFetcher struct {
	mu     sync.Mutex
	prices map[string]float64
	calls  map[string]int
	before func(id string) // runs before each answer, outside the lock
}

func newStubFetcher(prices map[string]float64) *stubFetcher {
	return &stubFetcher{prices: prices, calls: make(map[string]int)}
}

func (f *stubFetcher) FetchSnapshot(ctx context.Context, id string) (market.Snapshot, error) {
	if f.before != nil {
		f.before(id)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[id]++
	price, ok := f.prices[id]
	if !ok {
		return market.Snapshot{}, &market.FetchError{Asset: id, Err: errProvider}
	}
	return market.Snapshot{Asset: id, Price: price, MarketCap: price * 1000, Change24h: 1}, nil
}

func (f *stubFetcher) callCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

type failingStore struct{ failAsset string }

func (s failingStore) Append(_ context.Context, snap market.Snapshot) (market.Snapshot, error) {
	if snap.Asset == s.failAsset {
		return market.Snapshot{}, &market.StorageError{Op: "append", Err: errors.New("disk full")}
	}
	snap.Timestamp = time.Now()
	return snap, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	seen []string
}

func (n *recordingNotifier) Notify(s market.Snapshot) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seen = append(n.seen, s.Asset)
}

func testCatalog() market.Catalog {
	return market.NewCatalog(
		market.Asset{ID: "bitcoin"},
		market.Asset{ID: "ethereum"},
		market.Asset{ID: "matic-network", Fallback: "polygon"},
	)
}

func assets(snaps []market.Snapshot) []string {
	out := make([]string, len(snaps))
	for i, s := range snaps {
		out[i] = s.Asset
	}
	return out
}

// go test -v --run TestRunUpdateCycleAllSucceed
func TestRunUpdateCycleAllSucceed(t *testing.T) {
	store := memorystore.NewSnapshotStore(testCatalog())
	fetcher := newStubFetcher(map[string]float64{"bitcoin": 40000, "ethereum": 3000, "matic-network": 0.7})
	u := New(testCatalog(), fetcher, store, Config{TaskTimeout: time.Second}, metrics.NewRecorder(), zap.NewNop())

	stored, err := u.RunUpdateCycle(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"bitcoin", "ethereum", "matic-network"}, assets(stored))
	assert.Equal(t, 3, store.CountAll())
	assert.Equal(t, 0, fetcher.callCount("polygon"))

	for _, s := range stored {
		assert.False(t, s.Timestamp.IsZero(), "store assigns the timestamp")
	}
}

// go test -v --run TestRunUpdateCycleFallbackStoresCanonicalID
func TestRunUpdateCycleFallbackStoresCanonicalID(t *testing.T) {
	ctx := context.Background()
	store := memorystore.NewSnapshotStore(testCatalog())
	fetcher := newStubFetcher(map[string]float64{"bitcoin": 40000, "ethereum": 3000, "polygon": 0.5})
	u := New(testCatalog(), fetcher, store, Config{}, metrics.NewRecorder(), zap.NewNop())

	stored, err := u.RunUpdateCycle(ctx, TriggerManual)
	require.NoError(t, err)
	require.Len(t, stored, 3)

	matic, err := store.Recent(ctx, "matic-network", 10)
	require.NoError(t, err)
	require.Len(t, matic, 1)
	assert.Equal(t, 0.5, matic[0].Price)
	assert.Equal(t, "matic-network", matic[0].Asset)

	polygon, err := store.Recent(ctx, "polygon", 10)
	require.NoError(t, err)
	assert.Empty(t, polygon)

	assert.Equal(t, 1, fetcher.callCount("matic-network"))
	assert.Equal(t, 1, fetcher.callCount("polygon"))
}

// go test -v --run TestRunUpdateCycleFallbackFails
func TestRunUpdateCycleFallbackFails(t *testing.T) {
	store := memorystore.NewSnapshotStore(testCatalog())
	fetcher := newStubFetcher(map[string]float64{"bitcoin": 40000, "ethereum": 3000})
	u := New(testCatalog(), fetcher, store, Config{}, metrics.NewRecorder(), zap.NewNop())

	stored, err := u.RunUpdateCycle(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"bitcoin", "ethereum"}, assets(stored))
	assert.Equal(t, 1, fetcher.callCount("polygon"))
}

// go test -v --run TestRunUpdateCycleNoFallbackSkips
func TestRunUpdateCycleNoFallbackSkips(t *testing.T) {
	store := memorystore.NewSnapshotStore(testCatalog())
	fetcher := newStubFetcher(map[string]float64{"ethereum": 3000, "matic-network": 0.7})
	u := New(testCatalog(), fetcher, store, Config{}, metrics.NewRecorder(), zap.NewNop())

	stored, err := u.RunUpdateCycle(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ethereum", "matic-network"}, assets(stored))
	assert.Equal(t, 1, fetcher.callCount("bitcoin"))
}

// go test -v --run TestRunUpdateCycleAllFail
func TestRunUpdateCycleAllFail(t *testing.T) {
	store := memorystore.NewSnapshotStore(testCatalog())
	u := New(testCatalog(), newStubFetcher(nil), store, Config{}, metrics.NewRecorder(), zap.NewNop())

	stored, err := u.RunUpdateCycle(context.Background(), TriggerBus)
	require.NoError(t, err)
	assert.Empty(t, stored)
	assert.Equal(t, 0, store.CountAll())
}

// go test -v --run TestRunUpdateCycleNoAssets
func TestRunUpdateCycleNoAssets(t *testing.T) {
	u := New(market.NewCatalog(), newStubFetcher(nil), memorystore.NewSnapshotStore(market.NewCatalog()), Config{}, metrics.NewRecorder(), zap.NewNop())

	_, err := u.RunUpdateCycle(context.Background(), TriggerManual)
	assert.ErrorIs(t, err, ErrNoAssets)
}

// go test -v --run TestRunUpdateCycleStoreFailureIsContained
func TestRunUpdateCycleStoreFailureIsContained(t *testing.T) {
	fetcher := newStubFetcher(map[string]float64{"bitcoin": 40000, "ethereum": 3000, "matic-network": 0.7})
	u := New(testCatalog(), fetcher, failingStore{failAsset: "ethereum"}, Config{}, metrics.NewRecorder(), zap.NewNop())

	stored, err := u.RunUpdateCycle(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"bitcoin", "matic-network"}, assets(stored))
	// a store failure does not trigger the fallback path
	assert.Equal(t, 0, fetcher.callCount("polygon"))
}

// go test -v --run TestRunUpdateCyclePanicIsContained
func TestRunUpdateCyclePanicIsContained(t *testing.T) {
	fetcher := newStubFetcher(map[string]float64{"bitcoin": 40000, "ethereum": 3000, "matic-network": 0.7})
	fetcher.before = func(id string) {
		if id == "bitcoin" {
			panic("boom")
		}
	}
	store := memorystore.NewSnapshotStore(testCatalog())
	u := New(testCatalog(), fetcher, store, Config{}, metrics.NewRecorder(), zap.NewNop())

	stored, err := u.RunUpdateCycle(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ethereum", "matic-network"}, assets(stored))
}

// go test -v --run TestRunUpdateCycleFetchesConcurrently
func TestRunUpdateCycleFetchesConcurrently(t *testing.T) {
	// every fetch waits until all three are in flight; a sequential cycle would time out
	var arrived sync.WaitGroup
	arrived.Add(3)
	allIn := make(chan struct{})
	go func() {
		arrived.Wait()
		close(allIn)
	}()

	fetcher := newStubFetcher(map[string]float64{"bitcoin": 40000, "ethereum": 3000, "matic-network": 0.7})
	fetcher.before = func(id string) {
		arrived.Done()
		select {
		case <-allIn:
		case <-time.After(2 * time.Second):
			panic("fetches did not overlap")
		}
	}
	u := New(testCatalog(), fetcher, memorystore.NewSnapshotStore(testCatalog()), Config{}, metrics.NewRecorder(), zap.NewNop())

	stored, err := u.RunUpdateCycle(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.Len(t, stored, 3)
}

// go test -v --run TestRunUpdateCycleTaskTimeout
func TestRunUpdateCycleTaskTimeout(t *testing.T) {
	slow := &ctxFetcher{delay: map[string]time.Duration{"ethereum": time.Second}}
	u := New(testCatalog(), slow, memorystore.NewSnapshotStore(testCatalog()), Config{TaskTimeout: 50 * time.Millisecond}, metrics.NewRecorder(), zap.NewNop())

	start := time.Now()
	stored, err := u.RunUpdateCycle(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"bitcoin", "matic-network"}, assets(stored))
	assert.Less(t, time.Since(start), 900*time.Millisecond)
}

// ctxFetcher honours ctx while sleeping its configured delay.
type ctxFetcher struct {
	delay map[string]time.Duration
}

func (f *ctxFetcher) FetchSnapshot(ctx context.Context, id string) (market.Snapshot, error) {
	select {
	case <-time.After(f.delay[id]):
		return market.Snapshot{Asset: id, Price: 1}, nil
	case <-ctx.Done():
		return market.Snapshot{}, &market.FetchError{Asset: id, Err: ctx.Err()}
	}
}

// go test -v --run TestRunUpdateCycleIgnoresCallerCancellation
func TestRunUpdateCycleIgnoresCallerCancellation(t *testing.T) {
	slow := &ctxFetcher{delay: map[string]time.Duration{"bitcoin": 100 * time.Millisecond}}
	u := New(testCatalog(), slow, memorystore.NewSnapshotStore(testCatalog()), Config{TaskTimeout: time.Second}, metrics.NewRecorder(), zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	stored, err := u.RunUpdateCycle(ctx, TriggerManual)
	require.NoError(t, err)
	assert.Len(t, stored, 3)
}

// go test -v --run TestConcurrentCyclesKeepAllWrites
func TestConcurrentCyclesKeepAllWrites(t *testing.T) {
	store := memorystore.NewSnapshotStore(testCatalog())
	fetcher := newStubFetcher(map[string]float64{"bitcoin": 40000, "ethereum": 3000, "matic-network": 0.7})
	u := New(testCatalog(), fetcher, store, Config{}, metrics.NewRecorder(), zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stored, err := u.RunUpdateCycle(context.Background(), TriggerBus)
			assert.NoError(t, err)
			assert.Len(t, stored, 3)
		}()
	}
	wg.Wait()

	assert.Equal(t, 6, store.CountAll())
	btc, err := store.Recent(context.Background(), "bitcoin", 100)
	require.NoError(t, err)
	assert.Len(t, btc, 2)
}

// go test -v --run TestCoalescedCyclesShareWork
func TestCoalescedCyclesShareWork(t *testing.T) {
	release := make(chan struct{})
	var inFlight atomic.Int32

	fetcher := newStubFetcher(map[string]float64{"bitcoin": 40000, "ethereum": 3000, "matic-network": 0.7})
	fetcher.before = func(string) {
		inFlight.Add(1)
		<-release
	}
	store := memorystore.NewSnapshotStore(testCatalog())
	u := New(testCatalog(), fetcher, store, Config{Coalesce: true}, metrics.NewRecorder(), zap.NewNop())

	results := make(chan []market.Snapshot, 2)
	go func() {
		stored, _ := u.RunUpdateCycle(context.Background(), TriggerBus)
		results <- stored
	}()

	require.Eventually(t, func() bool { return inFlight.Load() == 3 }, 2*time.Second, 5*time.Millisecond)

	go func() {
		stored, _ := u.RunUpdateCycle(context.Background(), TriggerManual)
		results <- stored
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)

	for i := 0; i < 2; i++ {
		select {
		case stored := <-results:
			assert.Len(t, stored, 3)
		case <-time.After(2 * time.Second):
			t.Fatal("cycle did not finish")
		}
	}
	assert.Equal(t, 3, store.CountAll())
	assert.Equal(t, 1, fetcher.callCount("bitcoin"))
}

// go test -v --run TestNotifierSeesStoredSnapshots
func TestNotifierSeesStoredSnapshots(t *testing.T) {
	fetcher := newStubFetcher(map[string]float64{"bitcoin": 40000, "polygon": 0.5})
	u := New(testCatalog(), fetcher, memorystore.NewSnapshotStore(testCatalog()), Config{}, metrics.NewRecorder(), zap.NewNop())
	n := &recordingNotifier{}
	u.SetNotifier(n)

	_, err := u.RunUpdateCycle(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"bitcoin", "matic-network"}, n.seen)
}

func scrape(t *testing.T, rec *metrics.Recorder) string {
	t.Helper()
	w := httptest.NewRecorder()
	rec.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

// go test -v --run TestRunUpdateCycleRecordsMetrics
func TestRunUpdateCycleRecordsMetrics(t *testing.T) {
	rec := metrics.NewRecorder()
	fetcher := newStubFetcher(map[string]float64{"bitcoin": 40000, "polygon": 0.5})
	u := New(testCatalog(), fetcher, memorystore.NewSnapshotStore(testCatalog()), Config{}, rec, zap.NewNop())

	_, err := u.RunUpdateCycle(context.Background(), TriggerManual)
	require.NoError(t, err)

	body := scrape(t, rec)
	assert.Contains(t, body, `cryptostats_update_cycles_total{outcome="ok",trigger="manual"} 1`)
	assert.Contains(t, body, `cryptostats_update_snapshots_stored_total{asset="bitcoin"} 1`)
	assert.Contains(t, body, `cryptostats_update_snapshots_stored_total{asset="matic-network"} 1`)
	assert.Contains(t, body, `cryptostats_update_fetch_failures_total{asset="ethereum",stage="primary"} 1`)
	assert.Contains(t, body, `cryptostats_update_fetch_failures_total{asset="matic-network",stage="primary"} 1`)

	// a second recorder sees none of it
	assert.NotContains(t, scrape(t, metrics.NewRecorder()), "snapshots_stored_total{")
}
