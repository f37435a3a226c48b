package bus

import (
	"context"
	"errors"
	"sync"

	"cryptostats/internal/market"
)

var errLocalClosed = errors.New("local bus closed")

// LocalBus is an in-process bus: every published payload is delivered to every
// live subscriber. Used when scheduler and consumer share a process, and in tests.
type LocalBus struct {
	mu     sync.RWMutex
	subs   map[*localSub]struct{}
	closed bool
}

type localSub struct {
	ch   chan []byte
	done chan struct{}
	once sync.Once
}

func (s *localSub) stop() { s.once.Do(func() { close(s.done) }) }

func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[*localSub]struct{})}
}

func (b *LocalBus) Publish(ctx context.Context, sig market.RefreshSignal) error {
	data, err := encode(sig)
	if err != nil {
		return err
	}
	return b.PublishRaw(ctx, data)
}

// PublishRaw delivers an arbitrary payload, blocking until every live subscriber has taken it.
func (b *LocalBus) PublishRaw(ctx context.Context, data []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return &market.BusError{Op: "publish", Err: errLocalClosed}
	}

	for sub := range b.subs {
		select {
		case sub.ch <- data:
		case <-sub.done:
		case <-ctx.Done():
			return &market.BusError{Op: "publish", Err: ctx.Err()}
		}
	}
	return nil
}

func (b *LocalBus) Subscribe(ctx context.Context) (<-chan []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, &market.BusError{Op: "subscribe", Err: errLocalClosed}
	}

	sub := &localSub{
		ch:   make(chan []byte, 16),
		done: make(chan struct{}),
	}
	b.subs[sub] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
			b.remove(sub)
		case <-sub.done:
		}
	}()
	return sub.ch, nil
}

func (b *LocalBus) remove(sub *localSub) {
	// unblock a publisher waiting on this subscriber before taking the write lock
	sub.stop()

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

func (b *LocalBus) Close() error {
	b.mu.RLock()
	for sub := range b.subs {
		sub.stop()
	}
	b.mu.RUnlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for sub := range b.subs {
		delete(b.subs, sub)
		close(sub.ch)
	}
	return nil
}
