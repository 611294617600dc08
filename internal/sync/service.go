package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tl-its-umich-edu/placement-exams/internal/config"
	"github.com/tl-its-umich-edu/placement-exams/internal/db"
	"github.com/tl-its-umich-edu/placement-exams/internal/logger"
	"github.com/tl-its-umich-edu/placement-exams/internal/model"
	pkgerrors "github.com/tl-its-umich-edu/placement-exams/pkg/errors"

	"github.com/rs/zerolog"
)

// Service drives one exam through watermark, fetch, persist and transmit.
type Service struct {
	repo        db.Repository
	fetcher     *Fetcher
	persister   *Persister
	transmitter *Transmitter
	chunkSize   int
	now         func() time.Time
	log         zerolog.Logger
}

// NewService wires the pipeline on top of caller. Reads go through a
// RetryingCaller; score writes use caller directly.
func NewService(cfg *config.Config, repo db.Repository, caller Caller) *Service {
	reads := NewRetryingCaller(caller, cfg.Sync.MaxReqAttempts, cfg.Sync.RetryDelay)

	return &Service{
		repo:        repo,
		fetcher:     NewFetcher(reads, cfg.ExternalAPI.Canvas),
		persister:   NewPersister(repo),
		transmitter: NewTransmitter(caller, repo, cfg.ExternalAPI.MPathways),
		chunkSize:   cfg.Sync.ChunkSize,
		now:         time.Now,
		log:         logger.Get(),
	}
}

// RunExam performs one sync pass for exam. Fetch and batch failures are
// recorded on the returned ExamRun and do not stop the pass; the error is
// only set when the exam could not be processed at all or the API Directory
// rejected the credentials (ErrAuthentication).
func (s *Service) RunExam(ctx context.Context, exam model.Exam) (*model.ExamRun, error) {
	log := s.log.With().Int64("exam_id", exam.ID).Str("exam_name", exam.Name).Logger()

	run := &model.ExamRun{Exam: exam, StartTime: s.now().UTC()}
	defer func() { run.EndTime = s.now().UTC() }()

	log.Info().Msg("Processing exam")

	filter, err := SubTimeFilter(ctx, s.repo, exam)
	if err != nil {
		run.Err = err.Error()
		return run, err
	}
	run.SubTimeFilter = filter
	log.Info().Time("sub_time_filter", filter).Msg("Filtering Canvas submissions graded since")

	fetched, fetchErr := s.fetcher.Fetch(ctx, exam, filter)
	if fetched != nil {
		run.Fetched = len(fetched.Submissions)
		run.Discarded = fetched.Discarded
	}
	if fetchErr != nil {
		log.Error().Err(fetchErr).Msg("Fetching submissions stopped early")
		run.Err = fetchErr.Error()
	}
	if ctx.Err() != nil {
		return run, ctx.Err()
	}

	if fetched != nil {
		inserted, err := s.persister.Persist(ctx, exam, fetched.Submissions)
		if err != nil && fetchErr == nil {
			run.Err = err.Error()
		}
		run.Inserted = inserted
	}

	// Sending with rejected credentials would only fail every batch.
	if errors.Is(fetchErr, pkgerrors.ErrAuthentication) {
		return run, fetchErr
	}

	pending, err := s.repo.GetUntransmittedSubmissions(ctx, exam.ID)
	if err != nil {
		err = fmt.Errorf("failed to get untransmitted submissions: %w", err)
		run.Err = err.Error()
		return run, err
	}
	if len(pending) == 0 {
		log.Info().Msg("No scores to send")
		return run, nil
	}

	for _, sub := range pending {
		if sub.GradedTimestamp.Before(filter) {
			log.Info().
				Int64("submission_id", sub.SubmissionID).
				Time("graded_timestamp", sub.GradedTimestamp).
				Msg("Resending stale untransmitted submission")
		}
	}

	regular, duplicates := PartitionByUniqname(pending)
	if len(duplicates) > 0 {
		log.Info().Int("count", len(duplicates)).Msg("Sending submissions from repeat students one at a time")
	}

	batches := Chunk(regular, s.chunkSize)
	for _, sub := range duplicates {
		batches = append(batches, []model.Submission{sub})
	}

	for _, batch := range batches {
		if ctx.Err() != nil {
			return run, ctx.Err()
		}

		run.Batches++
		result, err := s.transmitter.SendScores(ctx, exam, batch)
		if err != nil {
			run.FailedBatches++
			log.Warn().Err(err).Int("batch_size", len(batch)).Msg("Batch was not transmitted")
			if errors.Is(err, pkgerrors.ErrAuthentication) {
				run.Err = err.Error()
				return run, err
			}
			continue
		}
		run.Transmitted += result.Marked
	}

	log.Info().
		Int("batches", run.Batches).
		Int("failed_batches", run.FailedBatches).
		Int("transmitted", run.Transmitted).
		Msg("Finished sending scores")

	return run, nil
}
