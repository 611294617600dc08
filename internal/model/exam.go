package model

import "time"

type Report struct {
	ID      int64  `json:"id" db:"id" yaml:"id"`
	Name    string `json:"name" db:"name" yaml:"name"`
	Contact string `json:"contact" db:"contact" yaml:"contact"`
}

// Exam pairs a Canvas course assignment with the M-Pathways form (SA code)
// its scores are written to.
type Exam struct {
	ID                int64     `json:"id" db:"id"`
	SACode            string    `json:"sa_code" db:"sa_code"`
	Name              string    `json:"name" db:"name"`
	ReportID          *int64    `json:"report_id,omitempty" db:"report_id"`
	CourseID          int64     `json:"course_id" db:"course_id"`
	AssignmentID      int64     `json:"assignment_id" db:"assignment_id"`
	DefaultTimeFilter time.Time `json:"default_time_filter" db:"default_time_filter"`
}

type ExamStatus struct {
	Exam             Exam      `json:"exam"`
	PendingCount     int       `json:"pending_count"`
	TransmittedCount int       `json:"transmitted_count"`
	SubTimeFilter    time.Time `json:"sub_time_filter"`
}
