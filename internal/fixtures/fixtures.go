package fixtures

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tl-its-umich-edu/placement-exams/internal/db"
	"github.com/tl-its-umich-edu/placement-exams/internal/logger"
	"github.com/tl-its-umich-edu/placement-exams/internal/model"
	pkgerrors "github.com/tl-its-umich-edu/placement-exams/pkg/errors"

	"gopkg.in/yaml.v3"
)

// MaxSACodeLength matches the width of the M-Pathways form column.
const MaxSACodeLength = 5

type File struct {
	Reports []Report `yaml:"reports"`
	Exams   []Exam   `yaml:"exams"`
}

type Report struct {
	ID      int64  `yaml:"id"`
	Name    string `yaml:"name"`
	Contact string `yaml:"contact"`
}

type Exam struct {
	SACode            string    `yaml:"sa_code"`
	Name              string    `yaml:"name"`
	ReportID          *int64    `yaml:"report_id"`
	CourseID          int64     `yaml:"course_id"`
	AssignmentID      int64     `yaml:"assignment_id"`
	DefaultTimeFilter time.Time `yaml:"default_time_filter"`
}

func Parse(data []byte) (*File, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fixtures: %w", err)
	}
	if err := file.Validate(); err != nil {
		return nil, err
	}
	return &file, nil
}

func (f *File) Validate() error {
	reportIDs := make(map[int64]bool, len(f.Reports))
	for i, report := range f.Reports {
		if report.ID <= 0 {
			return pkgerrors.ValidationError{Field: fmt.Sprintf("reports[%d].id", i), Value: report.ID, Message: "must be positive"}
		}
		if strings.TrimSpace(report.Name) == "" {
			return pkgerrors.ValidationError{Field: fmt.Sprintf("reports[%d].name", i), Value: report.Name, Message: "is required"}
		}
		if reportIDs[report.ID] {
			return pkgerrors.ValidationError{Field: fmt.Sprintf("reports[%d].id", i), Value: report.ID, Message: "is duplicated"}
		}
		reportIDs[report.ID] = true
	}

	saCodes := make(map[string]bool, len(f.Exams))
	for i, exam := range f.Exams {
		field := func(name string) string { return fmt.Sprintf("exams[%d].%s", i, name) }

		code := strings.TrimSpace(exam.SACode)
		if code == "" || len(code) > MaxSACodeLength {
			return pkgerrors.ValidationError{Field: field("sa_code"), Value: exam.SACode,
				Message: fmt.Sprintf("must be 1 to %d characters", MaxSACodeLength)}
		}
		if saCodes[code] {
			return pkgerrors.ValidationError{Field: field("sa_code"), Value: exam.SACode, Message: "is duplicated"}
		}
		saCodes[code] = true

		if strings.TrimSpace(exam.Name) == "" {
			return pkgerrors.ValidationError{Field: field("name"), Value: exam.Name, Message: "is required"}
		}
		if exam.CourseID <= 0 {
			return pkgerrors.ValidationError{Field: field("course_id"), Value: exam.CourseID, Message: "must be positive"}
		}
		if exam.AssignmentID <= 0 {
			return pkgerrors.ValidationError{Field: field("assignment_id"), Value: exam.AssignmentID, Message: "must be positive"}
		}
		if exam.ReportID != nil && !reportIDs[*exam.ReportID] {
			return pkgerrors.ValidationError{Field: field("report_id"), Value: *exam.ReportID, Message: "refers to an unknown report"}
		}
		if exam.DefaultTimeFilter.IsZero() {
			return pkgerrors.ValidationError{Field: field("default_time_filter"), Value: exam.DefaultTimeFilter, Message: "is required"}
		}
	}
	return nil
}

func (f *File) Models() ([]model.Report, []model.Exam) {
	reports := make([]model.Report, len(f.Reports))
	for i, r := range f.Reports {
		reports[i] = model.Report{ID: r.ID, Name: r.Name, Contact: r.Contact}
	}

	exams := make([]model.Exam, len(f.Exams))
	for i, e := range f.Exams {
		exams[i] = model.Exam{
			SACode:            strings.TrimSpace(e.SACode),
			Name:              e.Name,
			ReportID:          e.ReportID,
			CourseID:          e.CourseID,
			AssignmentID:      e.AssignmentID,
			DefaultTimeFilter: e.DefaultTimeFilter.UTC(),
		}
	}
	return reports, exams
}

// Load reads, validates and upserts a fixtures file in one transaction.
func Load(ctx context.Context, repo db.Repository, path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixtures file: %w", err)
	}

	file, err := Parse(data)
	if err != nil {
		return nil, err
	}

	reports, exams := file.Models()
	if err := repo.UpsertFixtures(ctx, reports, exams); err != nil {
		return nil, fmt.Errorf("failed to upsert fixtures: %w", err)
	}

	log := logger.Get()
	log.Info().
		Str("path", path).
		Int("reports", len(reports)).
		Int("exams", len(exams)).
		Msg("Loaded fixtures")
	return file, nil
}
