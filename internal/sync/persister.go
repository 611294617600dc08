package sync

import (
	"context"
	"fmt"
	"strings"

	"github.com/tl-its-umich-edu/placement-exams/internal/db"
	"github.com/tl-its-umich-edu/placement-exams/internal/logger"
	"github.com/tl-its-umich-edu/placement-exams/internal/model"

	"github.com/rs/zerolog"
)

type Persister struct {
	repo db.Repository
	log  zerolog.Logger
}

func NewPersister(repo db.Repository) *Persister {
	return &Persister{
		repo: repo,
		log:  logger.Get(),
	}
}

// Persist stores fetched records as untransmitted submissions in a single
// batch. A failed batch is abandoned as a whole; the same records come back
// on the next fetch.
func (p *Persister) Persist(ctx context.Context, exam model.Exam, records []model.CanvasSubmission) (int, error) {
	log := p.log.With().Int64("exam_id", exam.ID).Logger()

	if len(records) == 0 {
		log.Info().Msg("No submissions were provided")
		return 0, nil
	}

	subs := make([]model.Submission, len(records))
	for i, record := range records {
		subs[i] = model.Submission{
			SubmissionID:       record.ID,
			AttemptNum:         record.Attempt,
			ExamID:             exam.ID,
			StudentUniqname:    strings.TrimSpace(record.User.LoginID),
			SubmittedTimestamp: record.SubmittedAt,
			GradedTimestamp:    record.GradedAt.UTC(),
			Score:              record.Score.Decimal,
			Transmitted:        false,
		}
	}

	if err := p.repo.CreateSubmissions(ctx, subs); err != nil {
		log.Error().Err(err).Int("count", len(subs)).Msg("Submissions bulk creation failed")
		return 0, fmt.Errorf("failed to create submissions: %w", err)
	}

	log.Info().Int("count", len(subs)).Msg("Inserted new submission records in the database")
	return len(subs), nil
}
