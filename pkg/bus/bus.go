package bus

import (
	"context"
	"fmt"

	"cryptostats/config"
	"cryptostats/internal/market"

	"go.uber.org/zap"
)

// Publisher sends refresh signals on the bus subject.
type Publisher interface {
	Publish(ctx context.Context, sig market.RefreshSignal) error
}

// Subscriber delivers raw payloads received on the bus subject. The returned
// channel is closed when ctx is done or the connection is closed.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan []byte, error)
}

// Bus is a connection that can both publish and subscribe. Close releases
// subscriptions and flushes pending publishes before disconnecting.
type Bus interface {
	Publisher
	Subscriber
	Close() error
}

var (
	_ Bus = (*NatsBus)(nil)
	_ Bus = (*RedisBus)(nil)
	_ Bus = (*LocalBus)(nil)
)

// Open connects the bus selected by cfg.Driver.
func Open(ctx context.Context, cfg config.BusConfig, logger *zap.Logger) (Bus, error) {
	switch cfg.Driver {
	case "nats", "":
		return ConnectNats(cfg.NatsURL, cfg.Subject, logger)
	case "redis":
		return ConnectRedis(ctx, cfg, logger)
	case "local":
		return NewLocalBus(), nil
	default:
		return nil, fmt.Errorf("unknown bus driver %q", cfg.Driver)
	}
}

func encode(sig market.RefreshSignal) ([]byte, error) {
	data, err := sig.Encode()
	if err != nil {
		return nil, &market.BusError{Op: "encode", Err: err}
	}
	return data, nil
}
