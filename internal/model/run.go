package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExamRun describes one exam's pass through the sync pipeline.
type ExamRun struct {
	Exam          Exam      `json:"exam"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	SubTimeFilter time.Time `json:"sub_time_filter"`
	Fetched       int       `json:"fetched"`
	Discarded     int       `json:"discarded"`
	Inserted      int       `json:"inserted"`
	Batches       int       `json:"batches"`
	FailedBatches int       `json:"failed_batches"`
	Transmitted   int       `json:"transmitted"`
	Err           string    `json:"error,omitempty"`
}

type RunResult struct {
	RunID     string          `json:"run_id"`
	StartTime time.Time       `json:"start_time"`
	EndTime   time.Time       `json:"end_time"`
	Duration  time.Duration   `json:"duration"`
	ExamRuns  []ExamRun       `json:"exam_runs"`
	Reports   []ReportSummary `json:"reports"`
}

type SummaryCounts struct {
	SuccessCount int `json:"success_count"`
	FailureCount int `json:"failure_count"`
	NewCount     int `json:"new_count"`
}

type SubmissionSummary struct {
	SubmissionID       int64           `json:"submission_id"`
	StudentUniqname    string          `json:"student_uniqname"`
	Score              decimal.Decimal `json:"score"`
	SubmittedTimestamp *time.Time      `json:"submitted_timestamp,omitempty"`
}

type ExamSummary struct {
	Exam      Exam                `json:"exam"`
	Time      ExamRun             `json:"time"`
	Summary   SummaryCounts       `json:"summary"`
	Successes []SubmissionSummary `json:"successes"`
	Failures  []SubmissionSummary `json:"failures"`
}

type ReportSummary struct {
	RunID   string        `json:"run_id"`
	Report  Report        `json:"report"`
	Subject string        `json:"subject"`
	Summary SummaryCounts `json:"summary"`
	Exams   []ExamSummary `json:"exams"`
}

func (r ReportSummary) HasActivity() bool {
	return r.Summary.SuccessCount > 0 || r.Summary.FailureCount > 0
}

func NewSubmissionSummary(s Submission) SubmissionSummary {
	return SubmissionSummary{
		SubmissionID:       s.SubmissionID,
		StudentUniqname:    s.StudentUniqname,
		Score:              s.Score,
		SubmittedTimestamp: s.SubmittedTimestamp,
	}
}
