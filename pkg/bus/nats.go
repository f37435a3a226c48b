package bus

import (
	"context"
	"fmt"
	"time"

	"cryptostats/internal/market"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	drainTimeout = 10 * time.Second
	drainWait    = drainTimeout + 2*time.Second
)

// NatsBus carries refresh signals over a single NATS subject.
type NatsBus struct {
	conn    *nats.Conn
	subject string
	logger  *zap.Logger
}

// ConnectNats dials url; the connection reconnects on its own for the life of the process.
func ConnectNats(url, subject string, logger *zap.Logger) (*NatsBus, error) {
	logger = logger.Named("nats")
	logger.Info("connecting to NATS server", zap.String("url", url))

	conn, err := nats.Connect(url,
		nats.Name("cryptostats"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DrainTimeout(drainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("disconnected from NATS", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("reconnected to NATS", zap.String("server", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, &market.BusError{Op: "connect", Err: err}
	}
	logger.Info("connected to NATS", zap.String("server", conn.ConnectedUrl()))

	return &NatsBus{conn: conn, subject: subject, logger: logger}, nil
}

func (b *NatsBus) Publish(ctx context.Context, sig market.RefreshSignal) error {
	if err := ctx.Err(); err != nil {
		return &market.BusError{Op: "publish", Err: err}
	}
	data, err := encode(sig)
	if err != nil {
		return err
	}
	if err := b.conn.Publish(b.subject, data); err != nil {
		return &market.BusError{Op: "publish", Err: err}
	}
	b.logger.Info("published refresh signal", zap.String("subject", b.subject), zap.String("trigger", sig.Trigger))
	return nil
}

func (b *NatsBus) Subscribe(ctx context.Context) (<-chan []byte, error) {
	msgs := make(chan *nats.Msg, 64)
	sub, err := b.conn.ChanSubscribe(b.subject, msgs)
	if err != nil {
		return nil, &market.BusError{Op: "subscribe", Err: err}
	}
	b.logger.Info("subscribed", zap.String("subject", b.subject))

	out := make(chan []byte)
	go func() {
		defer close(out)
		defer func() {
			if err := sub.Unsubscribe(); err != nil && err != nats.ErrConnectionClosed && err != nats.ErrBadSubscription {
				b.logger.Warn("unsubscribe failed", zap.Error(err))
			}
		}()

		closed := b.conn.StatusChanged(nats.CLOSED)
		for {
			select {
			case <-ctx.Done():
				return
			case <-closed:
				return
			case msg := <-msgs:
				select {
				case out <- msg.Data:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close drains subscriptions and pending publishes, then closes the connection.
func (b *NatsBus) Close() error {
	if b.conn.IsClosed() {
		return nil
	}
	closed := b.conn.StatusChanged(nats.CLOSED)
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return fmt.Errorf("drain nats connection: %w", err)
	}

	// Drain is asynchronous; the connection closes once it completes or DrainTimeout passes
	select {
	case <-closed:
	case <-time.After(drainWait):
		b.conn.Close()
		return fmt.Errorf("drain nats connection: timed out after %s", drainWait)
	}
	b.logger.Info("NATS connection drained")
	return nil
}
