package worker

import (
	"context"
	"sync"

	"github.com/tl-its-umich-edu/placement-exams/internal/config"
	"github.com/tl-its-umich-edu/placement-exams/internal/logger"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler triggers sync runs on a cron spec with a seconds field. A tick
// that fires while the previous run is still going is skipped.
type Scheduler struct {
	cron    *cron.Cron
	runner  SyncRunner
	cfg     config.ScheduleConfig
	baseCtx context.Context
	running sync.Mutex
	log     zerolog.Logger
}

func NewScheduler(ctx context.Context, runner SyncRunner, cfg config.ScheduleConfig) *Scheduler {
	if ctx == nil {
		ctx = context.Background()
	}
	log := logger.Get()
	cronLog := cronLogger{log: log}

	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		runner:  runner,
		cfg:     cfg,
		baseCtx: ctx,
		log:     log,
	}
}

func (s *Scheduler) Start() error {
	job := RunJob(s.runner, s.log)
	run := func() {
		// The run on start is outside the cron chain.
		if !s.running.TryLock() {
			s.log.Info().Msg("Previous sync run still going; skipping")
			return
		}
		defer s.running.Unlock()

		if err := job(s.baseCtx); err != nil {
			s.log.Error().Err(err).Msg("Scheduled sync run failed")
		}
	}

	if _, err := s.cron.AddFunc(s.cfg.Spec, run); err != nil {
		return err
	}

	s.log.Info().Str("spec", s.cfg.Spec).Msg("Scheduler started")
	s.cron.Start()

	if s.cfg.RunOnStart {
		go run()
	}
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
