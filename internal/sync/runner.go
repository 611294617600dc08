package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tl-its-umich-edu/placement-exams/internal/db"
	"github.com/tl-its-umich-edu/placement-exams/internal/logger"
	"github.com/tl-its-umich-edu/placement-exams/internal/model"
	pkgerrors "github.com/tl-its-umich-edu/placement-exams/pkg/errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type ExamSyncer interface {
	RunExam(ctx context.Context, exam model.Exam) (*model.ExamRun, error)
}

// Locker keeps sync runs exclusive across processes.
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type Reporter interface {
	Report(ctx context.Context, runID string, report model.Report, runs []model.ExamRun) (*model.ReportSummary, error)
}

type Runner struct {
	repo     db.Repository
	syncer   ExamSyncer
	reporter Reporter
	locker   Locker
	now      func() time.Time
	log      zerolog.Logger
}

// NewRunner builds a Runner. reporter and locker may be nil.
func NewRunner(repo db.Repository, syncer ExamSyncer, reporter Reporter, locker Locker) *Runner {
	return &Runner{
		repo:     repo,
		syncer:   syncer,
		reporter: reporter,
		locker:   locker,
		now:      time.Now,
		log:      logger.Get(),
	}
}

// Run syncs every exam, grouped by report, then hands each report's exam runs
// to the reporter. One exam failing does not stop the others, except for
// ErrAuthentication, which ends the run and is returned with the partial result.
func (r *Runner) Run(ctx context.Context) (*model.RunResult, error) {
	if r.locker != nil {
		ok, err := r.locker.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire run lock: %w", err)
		}
		if !ok {
			return nil, pkgerrors.ErrRunInProgress
		}
		defer func() {
			if err := r.locker.Release(context.WithoutCancel(ctx)); err != nil {
				r.log.Error().Err(err).Msg("Failed to release run lock")
			}
		}()
	}

	result := &model.RunResult{
		RunID:     uuid.NewString(),
		StartTime: r.now().UTC(),
	}
	log := r.log.With().Str("run_id", result.RunID).Logger()
	log.Info().Msg("Starting sync run")

	reports, err := r.repo.ListReports(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	exams, err := r.repo.ListExams(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list exams: %w", err)
	}

	known := make(map[int64]bool, len(reports))
	for _, report := range reports {
		known[report.ID] = true
	}

	// Exams pointing at a report id that no longer exists are treated as unreported.
	byReport := make(map[int64][]model.Exam)
	var unreported []model.Exam
	for _, exam := range exams {
		if exam.ReportID == nil || !known[*exam.ReportID] {
			unreported = append(unreported, exam)
			continue
		}
		byReport[*exam.ReportID] = append(byReport[*exam.ReportID], exam)
	}

	var fatal error
	for _, report := range reports {
		reportExams := byReport[report.ID]
		if len(reportExams) == 0 {
			log.Info().Str("report", report.Name).Msg("Report has no exams")
			continue
		}

		log.Info().Str("report", report.Name).Int("exams", len(reportExams)).Msg("Processing report")

		runs, err := r.runExams(ctx, reportExams)
		result.ExamRuns = append(result.ExamRuns, runs...)
		if err != nil {
			fatal = err
			break
		}
		if ctx.Err() != nil {
			break
		}

		if r.reporter == nil {
			continue
		}
		summary, err := r.reporter.Report(ctx, result.RunID, report, runs)
		if err != nil {
			log.Error().Err(err).Str("report", report.Name).Msg("Failed to report exam results")
		}
		if summary != nil {
			result.Reports = append(result.Reports, *summary)
		}
	}

	if len(unreported) > 0 && fatal == nil && ctx.Err() == nil {
		log.Info().Int("exams", len(unreported)).Msg("Processing exams without a report")
		runs, err := r.runExams(ctx, unreported)
		result.ExamRuns = append(result.ExamRuns, runs...)
		fatal = err
	}

	result.EndTime = r.now().UTC()
	result.Duration = result.EndTime.Sub(result.StartTime)

	log.Info().
		Int("exams", len(result.ExamRuns)).
		Dur("duration", result.Duration).
		Msg("Sync run completed")

	if fatal != nil {
		log.Error().Err(fatal).Msg("Sync run aborted")
		return result, fatal
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (r *Runner) runExams(ctx context.Context, exams []model.Exam) ([]model.ExamRun, error) {
	runs := make([]model.ExamRun, 0, len(exams))
	for _, exam := range exams {
		if ctx.Err() != nil {
			break
		}

		run, err := r.syncer.RunExam(ctx, exam)
		if err != nil {
			r.log.Error().Err(err).Int64("exam_id", exam.ID).Str("exam_name", exam.Name).Msg("Exam sync failed")
		}
		if run == nil {
			run = &model.ExamRun{Exam: exam}
			if err != nil {
				run.Err = err.Error()
			}
		}
		runs = append(runs, *run)

		if errors.Is(err, pkgerrors.ErrAuthentication) {
			return runs, err
		}
	}
	return runs, nil
}
