package worker

import (
	"context"
	"errors"

	"github.com/tl-its-umich-edu/placement-exams/internal/logger"
	"github.com/tl-its-umich-edu/placement-exams/internal/model"
	"github.com/tl-its-umich-edu/placement-exams/internal/queue"
	pkgerrors "github.com/tl-its-umich-edu/placement-exams/pkg/errors"

	"github.com/rs/zerolog"
)

// SyncRunner runs one full sync over every exam.
type SyncRunner interface {
	Run(ctx context.Context) (*model.RunResult, error)
}

// SyncWorker turns sync queue messages into runs. Runs go through a
// single-worker pool so they never overlap inside one process.
type SyncWorker struct {
	runner     SyncRunner
	consumer   *queue.Consumer
	workerPool *WorkerPool
	log        zerolog.Logger
}

func NewSyncWorker(runner SyncRunner, consumer *queue.Consumer) *SyncWorker {
	return &SyncWorker{
		runner:     runner,
		consumer:   consumer,
		workerPool: NewWorkerPool(1),
		log:        logger.Get(),
	}
}

func (w *SyncWorker) Start(ctx context.Context) error {
	w.log.Info().Msg("Starting sync worker")

	// Start worker pool
	w.workerPool.Start(ctx)

	// Start consuming messages
	return w.consumer.ConsumeSyncQueue(ctx, w.handleMessage)
}

func (w *SyncWorker) Stop() {
	w.log.Info().Msg("Stopping sync worker")
	w.workerPool.Stop()
}

// handleMessage errors send the message to the DLQ, so only undecodable jobs fail here.
func (w *SyncWorker) handleMessage(_ context.Context, data []byte) error {
	job, err := queue.DecodeSyncJob(data)
	if err != nil {
		w.log.Error().Err(err).Msg("Failed to unmarshal sync job")
		return err
	}

	w.log.Info().
		Str("requested_by", job.RequestedBy).
		Time("requested_at", job.RequestedAt).
		Msg("Processing sync job")

	// Submit job to worker pool
	if !w.workerPool.Submit(RunJob(w.runner, w.log)) {
		w.log.Info().Str("requested_by", job.RequestedBy).Msg("A sync run is already queued; request coalesced")
	}
	return nil
}

// RunJob wraps a sync run as a pool job. A run rejected because another
// process holds the lock is logged and not treated as a failure.
func RunJob(runner SyncRunner, log zerolog.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		result, err := runner.Run(ctx)
		if errors.Is(err, pkgerrors.ErrRunInProgress) {
			log.Warn().Msg("Skipping sync run; another run is in progress")
			return nil
		}
		if err != nil {
			return err
		}

		log.Info().
			Str("run_id", result.RunID).
			Int("exams", len(result.ExamRuns)).
			Int("reports", len(result.Reports)).
			Dur("duration", result.Duration).
			Msg("Sync run finished")
		return nil
	}
}
