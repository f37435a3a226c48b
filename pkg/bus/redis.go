package bus

import (
	"context"
	"fmt"

	"cryptostats/config"
	"cryptostats/internal/market"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBus carries refresh signals over a Redis pub/sub channel.
type RedisBus struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

func ConnectRedis(ctx context.Context, cfg config.BusConfig, logger *zap.Logger) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, &market.BusError{Op: "connect", Err: err}
	}

	logger = logger.Named("redis")
	logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
	return NewRedisBus(client, cfg.Subject, logger), nil
}

// NewRedisBus wraps an existing client.
func NewRedisBus(client *redis.Client, channel string, logger *zap.Logger) *RedisBus {
	return &RedisBus{client: client, channel: channel, logger: logger}
}

func (b *RedisBus) Publish(ctx context.Context, sig market.RefreshSignal) error {
	data, err := encode(sig)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return &market.BusError{Op: "publish", Err: err}
	}
	b.logger.Info("published refresh signal", zap.String("channel", b.channel), zap.String("trigger", sig.Trigger))
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context) (<-chan []byte, error) {
	ps := b.client.Subscribe(ctx, b.channel)
	// wait for the subscription confirmation so no message published afterwards is missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, &market.BusError{Op: "subscribe", Err: err}
	}
	b.logger.Info("subscribed", zap.String("channel", b.channel))

	out := make(chan []byte)
	go func() {
		defer close(out)
		defer ps.Close()

		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *RedisBus) Close() error {
	if err := b.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}
