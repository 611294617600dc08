package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/tl-its-umich-edu/placement-exams/internal/db"
	"github.com/tl-its-umich-edu/placement-exams/internal/model"
)

// WatermarkIncrement is added to the latest stored graded timestamp so the
// next fetch starts after it.
const WatermarkIncrement = time.Second

// SubTimeFilter derives the "graded since" lower bound for an exam from the
// submissions already stored. It must be recomputed at the start of every run.
func SubTimeFilter(ctx context.Context, repo db.Repository, exam model.Exam) (time.Time, error) {
	last, err := repo.GetLastGradedTimestamp(ctx, exam.ID)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get last graded timestamp for exam %d: %w", exam.ID, err)
	}
	if last == nil {
		return exam.DefaultTimeFilter.UTC(), nil
	}
	return last.UTC().Add(WatermarkIncrement), nil
}
