package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tl-its-umich-edu/placement-exams/internal/model"
	pkgerrors "github.com/tl-its-umich-edu/placement-exams/pkg/errors"
)

type Repository interface {
	ListReports(ctx context.Context) ([]model.Report, error)
	ListExams(ctx context.Context) ([]model.Exam, error)
	GetExam(ctx context.Context, examID int64) (*model.Exam, error)
	UpsertFixtures(ctx context.Context, reports []model.Report, exams []model.Exam) error

	GetLastGradedTimestamp(ctx context.Context, examID int64) (*time.Time, error)
	CreateSubmissions(ctx context.Context, subs []model.Submission) error
	GetUntransmittedSubmissions(ctx context.Context, examID int64) ([]model.Submission, error)
	MarkSubmissionsTransmitted(ctx context.Context, ids []int64, transmittedAt time.Time) error

	GetSubmissions(ctx context.Context, examID int64, transmitted *bool) ([]model.Submission, error)
	GetTransmittedSince(ctx context.Context, examID int64, since time.Time) ([]model.Submission, error)
	CountGradedSince(ctx context.Context, examID int64, since time.Time) (int, error)
	CountSubmissions(ctx context.Context, examID int64) (pending int, transmitted int, err error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const examColumns = `id, sa_code, name, report_id, course_id, assignment_id, default_time_filter`

const submissionColumns = `id, submission_id, attempt_num, exam_id, student_uniqname, submitted_timestamp,
	graded_timestamp, score, transmitted, transmitted_timestamp`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExam(row rowScanner) (model.Exam, error) {
	var exam model.Exam
	err := row.Scan(&exam.ID, &exam.SACode, &exam.Name, &exam.ReportID,
		&exam.CourseID, &exam.AssignmentID, &exam.DefaultTimeFilter)
	exam.DefaultTimeFilter = exam.DefaultTimeFilter.UTC()
	return exam, err
}

func scanSubmission(row rowScanner) (model.Submission, error) {
	var sub model.Submission
	err := row.Scan(&sub.ID, &sub.SubmissionID, &sub.AttemptNum, &sub.ExamID, &sub.StudentUniqname,
		&sub.SubmittedTimestamp, &sub.GradedTimestamp, &sub.Score, &sub.Transmitted,
		&sub.TransmittedTimestamp)
	sub.GradedTimestamp = sub.GradedTimestamp.UTC()
	return sub, err
}

func (r *repository) ListReports(ctx context.Context) ([]model.Report, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, contact FROM reports ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []model.Report
	for rows.Next() {
		var report model.Report
		if err := rows.Scan(&report.ID, &report.Name, &report.Contact); err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

func (r *repository) ListExams(ctx context.Context) ([]model.Exam, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+examColumns+` FROM exams ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		exam, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		exams = append(exams, exam)
	}
	return exams, rows.Err()
}

func (r *repository) GetExam(ctx context.Context, examID int64) (*model.Exam, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+examColumns+` FROM exams WHERE id = ?`, examID)
	exam, err := scanExam(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrExamNotFound
	}
	if err != nil {
		return nil, err
	}
	return &exam, nil
}

// UpsertFixtures writes reports keyed on id and exams keyed on sa_code in one transaction.
func (r *repository) UpsertFixtures(ctx context.Context, reports []model.Report, exams []model.Exam) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, report := range reports {
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports WHERE id = ?`, report.ID).Scan(&count); err != nil {
			return err
		}
		if count > 0 {
			_, err = tx.ExecContext(ctx, `UPDATE reports SET name = ?, contact = ? WHERE id = ?`,
				report.Name, report.Contact, report.ID)
		} else {
			_, err = tx.ExecContext(ctx, `INSERT INTO reports (id, name, contact) VALUES (?, ?, ?)`,
				report.ID, report.Name, report.Contact)
		}
		if err != nil {
			return fmt.Errorf("failed to upsert report %d: %w", report.ID, err)
		}
	}

	for _, exam := range exams {
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM exams WHERE sa_code = ?`, exam.SACode).Scan(&count); err != nil {
			return err
		}
		filter := exam.DefaultTimeFilter.UTC()
		if count > 0 {
			_, err = tx.ExecContext(ctx, `UPDATE exams SET name = ?, report_id = ?, course_id = ?, assignment_id = ?,
				default_time_filter = ? WHERE sa_code = ?`,
				exam.Name, exam.ReportID, exam.CourseID, exam.AssignmentID, filter, exam.SACode)
		} else {
			_, err = tx.ExecContext(ctx, `INSERT INTO exams (sa_code, name, report_id, course_id, assignment_id,
				default_time_filter) VALUES (?, ?, ?, ?, ?, ?)`,
				exam.SACode, exam.Name, exam.ReportID, exam.CourseID, exam.AssignmentID, filter)
		}
		if err != nil {
			return fmt.Errorf("failed to upsert exam %s: %w", exam.SACode, err)
		}
	}

	return tx.Commit()
}

func (r *repository) GetLastGradedTimestamp(ctx context.Context, examID int64) (*time.Time, error) {
	query := `SELECT graded_timestamp FROM submissions WHERE exam_id = ?
			  ORDER BY graded_timestamp DESC LIMIT 1`

	var graded time.Time
	err := r.db.QueryRowContext(ctx, query, examID).Scan(&graded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	graded = graded.UTC()
	return &graded, nil
}

// CreateSubmissions inserts all rows or none. A unique submission_id collision
// rolls back the whole batch.
func (r *repository) CreateSubmissions(ctx context.Context, subs []model.Submission) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `INSERT INTO submissions (submission_id, attempt_num, exam_id, student_uniqname,
			  submitted_timestamp, graded_timestamp, score, transmitted, transmitted_timestamp)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, sub := range subs {
		var submitted *time.Time
		if sub.SubmittedTimestamp != nil {
			t := sub.SubmittedTimestamp.UTC()
			submitted = &t
		}
		_, err := stmt.ExecContext(ctx, sub.SubmissionID, sub.AttemptNum, sub.ExamID, sub.StudentUniqname,
			submitted, sub.GradedTimestamp.UTC(), sub.Score, sub.Transmitted, sub.TransmittedTimestamp)
		if err != nil {
			return fmt.Errorf("failed to insert submission %d: %w", sub.SubmissionID, err)
		}
	}

	return tx.Commit()
}

func (r *repository) GetUntransmittedSubmissions(ctx context.Context, examID int64) ([]model.Submission, error) {
	f := false
	return r.GetSubmissions(ctx, examID, &f)
}

func (r *repository) MarkSubmissionsTransmitted(ctx context.Context, ids []int64, transmittedAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	// The first successful transmission keeps its timestamp.
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	query := `UPDATE submissions SET transmitted = ?, transmitted_timestamp = ?
			  WHERE transmitted = ? AND id IN (` + placeholders + `)`

	args := make([]any, 0, len(ids)+3)
	args = append(args, true, transmittedAt.UTC(), false)
	for _, id := range ids {
		args = append(args, id)
	}

	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *repository) GetSubmissions(ctx context.Context, examID int64, transmitted *bool) ([]model.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE exam_id = ?`
	args := []any{examID}
	if transmitted != nil {
		query += ` AND transmitted = ?`
		args = append(args, *transmitted)
	}
	query += ` ORDER BY id`

	return r.querySubmissions(ctx, query, args...)
}

func (r *repository) GetTransmittedSince(ctx context.Context, examID int64, since time.Time) ([]model.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions
			  WHERE exam_id = ? AND transmitted = ? AND transmitted_timestamp >= ?
			  ORDER BY id`
	return r.querySubmissions(ctx, query, examID, true, since.UTC())
}

func (r *repository) CountGradedSince(ctx context.Context, examID int64, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM submissions WHERE exam_id = ? AND graded_timestamp >= ?`,
		examID, since.UTC()).Scan(&count)
	return count, err
}

func (r *repository) CountSubmissions(ctx context.Context, examID int64) (int, int, error) {
	query := `SELECT
		COUNT(CASE WHEN transmitted = ? THEN 1 END) as pending_count,
		COUNT(CASE WHEN transmitted = ? THEN 1 END) as transmitted_count
	FROM submissions WHERE exam_id = ?`

	var pending, transmitted int
	err := r.db.QueryRowContext(ctx, query, false, true, examID).Scan(&pending, &transmitted)
	return pending, transmitted, err
}

func (r *repository) querySubmissions(ctx context.Context, query string, args ...any) ([]model.Submission, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []model.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
