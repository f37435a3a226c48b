package bus

import (
	"context"
	"os"
	"testing"
	"time"

	"cryptostats/config"
	"cryptostats/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func receive(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "channel closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

// go test -v --run TestLocalBusFanOut
func TestLocalBusFanOut(t *testing.T) {
	b := NewLocalBus()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, err := b.Subscribe(ctx)
	require.NoError(t, err)
	second, err := b.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, market.UpdateSignal()))

	for _, ch := range []<-chan []byte{first, second} {
		sig, err := market.DecodeSignal(receive(t, ch))
		require.NoError(t, err)
		assert.Equal(t, market.TriggerUpdate, sig.Trigger)
	}
}

// go test -v --run TestLocalBusUnsubscribeOnCancel
func TestLocalBusUnsubscribeOnCancel(t *testing.T) {
	b := NewLocalBus()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := b.Subscribe(ctx)
	require.NoError(t, err)

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription channel not closed after cancel")
	}

	// publishing with no subscribers is not an error
	assert.NoError(t, b.Publish(context.Background(), market.UpdateSignal()))
}

// go test -v --run TestLocalBusClosed
func TestLocalBusClosed(t *testing.T) {
	b := NewLocalBus()
	ch, err := b.Subscribe(context.Background())
	require.NoError(t, err)

	require.NoError(t, b.Close())

	_, ok := <-ch
	assert.False(t, ok)

	err = b.Publish(context.Background(), market.UpdateSignal())
	assert.ErrorIs(t, err, market.ErrBus)

	_, err = b.Subscribe(context.Background())
	assert.ErrorIs(t, err, market.ErrBus)
}

// go test -v --run TestOpenUnknownDriver
func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.BusConfig{Driver: "kafka"}, zap.NewNop())
	assert.Error(t, err)

	b, err := Open(context.Background(), config.BusConfig{Driver: "local"}, zap.NewNop())
	require.NoError(t, err)
	assert.NoError(t, b.Close())
}

func roundTrip(t *testing.T, b Bus) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := b.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, market.UpdateSignal()))
	assert.JSONEq(t, `{"trigger":"update"}`, string(receive(t, ch)))
}

// go test -v --run TestNatsRoundTrip
func TestNatsRoundTrip(t *testing.T) {
	url := os.Getenv("CRYPTOSTATS_TEST_NATS_URL")
	if url == "" {
		t.Skip("CRYPTOSTATS_TEST_NATS_URL not set")
	}

	b, err := ConnectNats(url, "crypto.update.test", zap.NewNop())
	require.NoError(t, err)
	defer b.Close()

	roundTrip(t, b)
}

// go test -v --run TestRedisRoundTrip
func TestRedisRoundTrip(t *testing.T) {
	addr := os.Getenv("CRYPTOSTATS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CRYPTOSTATS_TEST_REDIS_ADDR not set")
	}

	b, err := ConnectRedis(context.Background(), config.BusConfig{
		RedisAddr: addr,
		Subject:   "crypto.update.test",
	}, zap.NewNop())
	require.NoError(t, err)
	defer b.Close()

	roundTrip(t, b)
}
