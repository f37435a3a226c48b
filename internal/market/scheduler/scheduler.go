package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"cryptostats/internal/market"
	"cryptostats/internal/metrics"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

const defaultPublishTimeout = 10 * time.Second

var ErrAlreadyStarted = errors.New("scheduler already started")

// Publisher sends a refresh signal on the bus.
type Publisher interface {
	Publish(ctx context.Context, sig market.RefreshSignal) error
}

type Config struct {
	Period         time.Duration // periodic fire interval
	InitialDelay   time.Duration // one extra fire this long after Start
	PublishTimeout time.Duration
}

// Scheduler emits a RefreshSignal every Period, plus once InitialDelay after Start.
type Scheduler struct {
	cron      *gocron.Scheduler
	publisher Publisher
	cfg       Config
	metrics   *metrics.Recorder
	logger    *zap.Logger

	mu      sync.Mutex
	initial *time.Timer
	started bool
	stopped bool
}

func New(publisher Publisher, cfg Config, recorder *metrics.Recorder, logger *zap.Logger) *Scheduler {
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}
	return &Scheduler{
		cron:      gocron.NewScheduler(time.UTC),
		publisher: publisher,
		cfg:       cfg,
		metrics:   recorder,
		logger:    logger.Named("scheduler"),
	}
}

// Start arms the periodic job and the initial delayed fire. It does not block.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}

	// WaitForSchedule: the first periodic fire is one Period after start
	if _, err := s.cron.Every(s.cfg.Period).WaitForSchedule().Do(s.fire, "periodic"); err != nil {
		return err
	}
	s.cron.StartAsync()

	s.initial = time.AfterFunc(s.cfg.InitialDelay, func() { s.fire("initial") })
	s.started = true

	s.logger.Info("scheduler started",
		zap.Duration("period", s.cfg.Period),
		zap.Duration("initial_delay", s.cfg.InitialDelay),
	)
	return nil
}

// Stop halts future fires. A publish already in progress is allowed to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.stopped {
		return
	}
	s.stopped = true

	if s.initial != nil {
		s.initial.Stop()
	}
	s.cron.Stop()
	s.logger.Info("scheduler stopped")
}

// fire publishes one refresh signal; failures are logged and the schedule continues.
func (s *Scheduler) fire(source string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PublishTimeout)
	defer cancel()

	if err := s.publisher.Publish(ctx, market.UpdateSignal()); err != nil {
		s.metrics.RecordSignal("published", "error")
		s.logger.Error("failed to publish refresh signal", zap.String("source", source), zap.Error(err))
		return
	}
	s.metrics.RecordSignal("published", "ok")
	s.logger.Info("refresh signal published", zap.String("source", source))
}
