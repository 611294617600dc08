package report

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tl-its-umich-edu/placement-exams/internal/db"
	"github.com/tl-its-umich-edu/placement-exams/internal/logger"
	"github.com/tl-its-umich-edu/placement-exams/internal/model"

	"github.com/rs/zerolog"
)

// Sink receives report summaries that had activity.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, summary model.ReportSummary) error
}

type Reporter struct {
	repo  db.Repository
	sinks []Sink
	log   zerolog.Logger
}

func NewReporter(repo db.Repository, sinks ...Sink) *Reporter {
	return &Reporter{
		repo:  repo,
		sinks: sinks,
		log:   logger.Get(),
	}
}

// Build summarizes one report's exam runs from the stored submissions.
func (r *Reporter) Build(ctx context.Context, runID string, report model.Report, runs []model.ExamRun) (*model.ReportSummary, error) {
	summary := &model.ReportSummary{
		RunID:  runID,
		Report: report,
		Exams:  make([]model.ExamSummary, 0, len(runs)),
	}

	names := make([]string, 0, len(runs))
	for _, run := range runs {
		exam, err := r.examSummary(ctx, run)
		if err != nil {
			return nil, err
		}
		summary.Exams = append(summary.Exams, *exam)
		summary.Summary.SuccessCount += exam.Summary.SuccessCount
		summary.Summary.FailureCount += exam.Summary.FailureCount
		summary.Summary.NewCount += exam.Summary.NewCount
		names = append(names, run.Exam.Name)
	}

	summary.Subject = Subject(report.Name, summary.Summary, names)
	return summary, nil
}

func (r *Reporter) examSummary(ctx context.Context, run model.ExamRun) (*model.ExamSummary, error) {
	examID := run.Exam.ID

	successes, err := r.repo.GetTransmittedSince(ctx, examID, run.StartTime)
	if err != nil {
		return nil, fmt.Errorf("failed to get transmitted submissions for exam %d: %w", examID, err)
	}
	failures, err := r.repo.GetUntransmittedSubmissions(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("failed to get untransmitted submissions for exam %d: %w", examID, err)
	}

	newCount := 0
	if !run.SubTimeFilter.IsZero() {
		newCount, err = r.repo.CountGradedSince(ctx, examID, run.SubTimeFilter)
		if err != nil {
			return nil, fmt.Errorf("failed to count new submissions for exam %d: %w", examID, err)
		}
	}

	exam := &model.ExamSummary{
		Exam: run.Exam,
		Time: run,
		Summary: model.SummaryCounts{
			SuccessCount: len(successes),
			FailureCount: len(failures),
			NewCount:     newCount,
		},
		Successes: make([]model.SubmissionSummary, 0, len(successes)),
		Failures:  make([]model.SubmissionSummary, 0, len(failures)),
	}
	for _, sub := range successes {
		exam.Successes = append(exam.Successes, model.NewSubmissionSummary(sub))
	}
	for _, sub := range failures {
		exam.Failures = append(exam.Failures, model.NewSubmissionSummary(sub))
	}
	return exam, nil
}

// Report builds the summary and delivers it to every sink when anything was
// sent or is still failing. Sink errors do not stop delivery to other sinks.
func (r *Reporter) Report(ctx context.Context, runID string, report model.Report, runs []model.ExamRun) (*model.ReportSummary, error) {
	log := r.log.With().Str("run_id", runID).Str("report", report.Name).Logger()

	summary, err := r.Build(ctx, runID, report, runs)
	if err != nil {
		return nil, err
	}

	if !summary.HasActivity() {
		log.Info().Msg("No successes or failures to report")
		return summary, nil
	}

	var errs []error
	for _, sink := range r.sinks {
		if err := sink.Deliver(ctx, *summary); err != nil {
			log.Error().Err(err).Str("sink", sink.Name()).Msg("Failed to deliver report")
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
			continue
		}
		log.Info().Str("sink", sink.Name()).Str("subject", summary.Subject).Msg("Delivered report")
	}
	return summary, errors.Join(errs...)
}

// Subject formats the report headline, e.g.
// "Placement Exams - Potions - New: 2, Success: 1, Failure: 1 - Potions Placement, Potions Validation".
func Subject(reportName string, counts model.SummaryCounts, examNames []string) string {
	return fmt.Sprintf("Placement Exams - %s - New: %d, Success: %d, Failure: %d - %s",
		reportName, counts.NewCount, counts.SuccessCount, counts.FailureCount, strings.Join(examNames, ", "))
}
