package consumer

import (
	"context"

	"cryptostats/internal/market"
	"cryptostats/internal/market/updater"
	"cryptostats/internal/metrics"

	"go.uber.org/zap"
)

// Runner runs one update cycle.
type Runner interface {
	RunUpdateCycle(ctx context.Context, trigger updater.Trigger) ([]market.Snapshot, error)
}

// MakeSignalHandler returns a function that decodes one bus payload and, for
// an "update" signal, runs an update cycle. It never panics and never returns
// an error: every failure is logged.
func MakeSignalHandler(logger *zap.Logger, runner Runner, recorder *metrics.Recorder) func(ctx context.Context, msg []byte) {
	return func(ctx context.Context, msg []byte) {
		defer func() {
			if r := recover(); r != nil {
				recorder.RecordSignal("received", "panic")
				logger.Error("signal handler panicked", zap.Any("panic", r))
			}
		}()

		sig, err := market.DecodeSignal(msg)
		if err != nil {
			recorder.RecordSignal("received", "invalid")
			logger.Warn("dropping malformed signal", zap.ByteString("payload", msg), zap.Error(err))
			return
		}
		if sig.Trigger != market.TriggerUpdate {
			recorder.RecordSignal("received", "ignored")
			logger.Debug("ignoring signal", zap.String("trigger", sig.Trigger))
			return
		}

		logger.Info("received update signal")
		stored, err := runner.RunUpdateCycle(ctx, updater.TriggerBus)
		if err != nil {
			recorder.RecordSignal("received", "error")
			logger.Error("update cycle failed", zap.Error(err))
			return
		}
		recorder.RecordSignal("received", "ok")
		logger.Info("update cycle finished", zap.Int("stored", len(stored)))
	}
}
