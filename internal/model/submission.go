package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Submission struct {
	ID                   int64           `json:"id" db:"id"`
	SubmissionID         int64           `json:"submission_id" db:"submission_id"`
	AttemptNum           *int            `json:"attempt_num,omitempty" db:"attempt_num"`
	ExamID               int64           `json:"exam_id" db:"exam_id"`
	StudentUniqname      string          `json:"student_uniqname" db:"student_uniqname"`
	SubmittedTimestamp   *time.Time      `json:"submitted_timestamp,omitempty" db:"submitted_timestamp"`
	GradedTimestamp      time.Time       `json:"graded_timestamp" db:"graded_timestamp"`
	Score                decimal.Decimal `json:"score" db:"score"`
	Transmitted          bool            `json:"transmitted" db:"transmitted"`
	TransmittedTimestamp *time.Time      `json:"transmitted_timestamp,omitempty" db:"transmitted_timestamp"`
}

// PrepareScore returns the condensed form of the submission M-Pathways expects.
func (s Submission) PrepareScore(saCode string) ScoreEntry {
	return ScoreEntry{
		ID:          s.StudentUniqname,
		Form:        saCode,
		GradePoints: FormatGradePoints(s.Score),
	}
}

// FormatGradePoints renders a score as a decimal string that always carries a
// fractional part ("100.0", "87.25").
func FormatGradePoints(score decimal.Decimal) string {
	s := score.String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
