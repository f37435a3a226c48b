package consumer

import (
	"context"
	"sync"

	"cryptostats/internal/metrics"

	"go.uber.org/zap"
)

// Subscriber delivers raw bus payloads until ctx is done or the bus closes.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan []byte, error)
}

// Consumer keeps a standing subscription on the bus subject and hands every
// payload to the signal handler. Signals are dispatched concurrently, so two
// signals arriving close together may run two overlapping cycles.
type Consumer struct {
	sub    Subscriber
	handle func(ctx context.Context, msg []byte)
	logger *zap.Logger

	wg sync.WaitGroup
}

func New(sub Subscriber, runner Runner, recorder *metrics.Recorder, logger *zap.Logger) *Consumer {
	logger = logger.Named("consumer")
	return &Consumer{
		sub:    sub,
		handle: MakeSignalHandler(logger, runner, recorder),
		logger: logger,
	}
}

// Run subscribes and processes signals until ctx is done or the bus closes the
// subscription. It returns only after in-flight handlers have finished. The
// only error is a failure to subscribe.
func (c *Consumer) Run(ctx context.Context) error {
	msgs, err := c.sub.Subscribe(ctx)
	if err != nil {
		return err
	}
	c.logger.Info("listening for refresh signals")

	defer c.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopping", zap.Error(ctx.Err()))
			return nil
		case msg, ok := <-msgs:
			if !ok {
				c.logger.Info("subscription closed")
				return nil
			}
			c.wg.Add(1)
			go func() {
				defer c.wg.Done()
				c.handle(ctx, msg)
			}()
		}
	}
}
