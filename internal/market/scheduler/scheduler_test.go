package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cryptostats/internal/market"
	"cryptostats/internal/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingPublisher struct {
	mu      sync.Mutex
	signals []market.RefreshSignal
	err     error
}

func (p *recordingPublisher) Publish(_ context.Context, sig market.RefreshSignal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signals = append(p.signals, sig)
	return p.err
}

func (p *recordingPublisher) first() market.RefreshSignal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signals[0]
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.signals)
}

// go test -v --run TestSchedulerInitialFire
func TestSchedulerInitialFire(t *testing.T) {
	pub := &recordingPublisher{}
	s := New(pub, Config{Period: time.Hour, InitialDelay: 20 * time.Millisecond}, metrics.NewRecorder(), zap.NewNop())
	require.NoError(t, s.Start())
	defer s.Stop()

	// nothing before the delay elapses
	assert.Zero(t, pub.count())

	require.Eventually(t, func() bool { return pub.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, market.UpdateSignal(), pub.first())

	// with an hour-long period, no further fire follows
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, pub.count())
}

// go test -v --run TestSchedulerPeriodicFire
func TestSchedulerPeriodicFire(t *testing.T) {
	pub := &recordingPublisher{}
	s := New(pub, Config{Period: time.Second, InitialDelay: time.Hour}, metrics.NewRecorder(), zap.NewNop())
	require.NoError(t, s.Start())
	defer s.Stop()

	require.Eventually(t, func() bool { return pub.count() >= 2 }, 4*time.Second, 20*time.Millisecond)
}

// go test -v --run TestSchedulerContinuesAfterPublishFailure
func TestSchedulerContinuesAfterPublishFailure(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("bus down")}
	s := New(pub, Config{Period: time.Second, InitialDelay: 10 * time.Millisecond}, metrics.NewRecorder(), zap.NewNop())
	require.NoError(t, s.Start())
	defer s.Stop()

	// initial fire fails, periodic fires keep coming
	require.Eventually(t, func() bool { return pub.count() >= 3 }, 4*time.Second, 20*time.Millisecond)
}

// go test -v --run TestSchedulerStop
func TestSchedulerStop(t *testing.T) {
	pub := &recordingPublisher{}
	s := New(pub, Config{Period: time.Second, InitialDelay: 200 * time.Millisecond}, metrics.NewRecorder(), zap.NewNop())
	require.NoError(t, s.Start())

	s.Stop()
	s.Stop()

	time.Sleep(1500 * time.Millisecond)
	assert.Zero(t, pub.count())
}

// go test -v --run TestSchedulerStartTwice
func TestSchedulerStartTwice(t *testing.T) {
	s := New(&recordingPublisher{}, Config{Period: time.Hour, InitialDelay: time.Hour}, metrics.NewRecorder(), zap.NewNop())
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.ErrorIs(t, s.Start(), ErrAlreadyStarted)
}
