package db

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tl-its-umich-edu/placement-exams/internal/config"
	"github.com/tl-its-umich-edu/placement-exams/internal/model"
	pkgerrors "github.com/tl-its-umich-edu/placement-exams/pkg/errors"
)

func createTestRepository(t *testing.T) Repository {
	t.Helper()

	cfg := &config.Config{}
	cfg.Database.Driver = DriverSQLite
	cfg.Database.Path = ":memory:"

	database, err := NewConnection(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	require.NoError(t, Migrate(context.Background(), database, DriverSQLite))
	return NewRepository(database)
}

func int64Ptr(v int64) *int64 { return &v }

func seedFixtures(t *testing.T, repo Repository) []model.Exam {
	t.Helper()
	ctx := context.Background()

	reports := []model.Report{{ID: 1, Name: "Potions", Contact: "halfbloodprince@hogwarts.edu"}}
	exams := []model.Exam{
		{
			SACode: "PP", Name: "Potions Placement", ReportID: int64Ptr(1),
			CourseID: 888888, AssignmentID: 111111,
			DefaultTimeFilter: time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			SACode: "PV", Name: "Potions Validation", ReportID: int64Ptr(1),
			CourseID: 888888, AssignmentID: 111112,
			DefaultTimeFilter: time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC),
		},
	}
	require.NoError(t, repo.UpsertFixtures(ctx, reports, exams))

	stored, err := repo.ListExams(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	return stored
}

func newSubmission(examID, submissionID int64, uniqname string, graded time.Time, score int64) model.Submission {
	attempt := 1
	submitted := graded.Add(-time.Hour)
	return model.Submission{
		SubmissionID:       submissionID,
		AttemptNum:         &attempt,
		ExamID:             examID,
		StudentUniqname:    uniqname,
		SubmittedTimestamp: &submitted,
		GradedTimestamp:    graded,
		Score:              decimal.NewFromInt(score),
	}
}

func TestUpsertFixtures_UpdatesExistingRows(t *testing.T) {
	repo := createTestRepository(t)
	ctx := context.Background()
	exams := seedFixtures(t, repo)

	updated := exams[0]
	updated.Name = "Potions Placement Advanced"
	updated.CourseID = 888889
	require.NoError(t, repo.UpsertFixtures(ctx,
		[]model.Report{{ID: 1, Name: "Placement Potions", Contact: "hslughorn@hogwarts.edu"}},
		[]model.Exam{updated}))

	reports, err := repo.ListReports(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "hslughorn@hogwarts.edu", reports[0].Contact)

	exam, err := repo.GetExam(ctx, exams[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "PP", exam.SACode)
	assert.Equal(t, "Potions Placement Advanced", exam.Name)
	assert.Equal(t, int64(888889), exam.CourseID)

	all, err := repo.ListExams(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestGetExam_NotFound(t *testing.T) {
	repo := createTestRepository(t)
	_, err := repo.GetExam(context.Background(), 42)
	assert.ErrorIs(t, err, pkgerrors.ErrExamNotFound)
}

func TestGetLastGradedTimestamp(t *testing.T) {
	repo := createTestRepository(t)
	ctx := context.Background()
	exams := seedFixtures(t, repo)

	last, err := repo.GetLastGradedTimestamp(ctx, exams[0].ID)
	require.NoError(t, err)
	assert.Nil(t, last)

	latest := time.Date(2020, 6, 12, 16, 0, 0, 0, time.UTC)
	require.NoError(t, repo.CreateSubmissions(ctx, []model.Submission{
		newSubmission(exams[0].ID, 123456, "hpotter", latest.Add(-2*time.Hour), 100),
		newSubmission(exams[0].ID, 123457, "hgranger", latest, 200),
	}))

	last, err = repo.GetLastGradedTimestamp(ctx, exams[0].ID)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, latest.Equal(*last), "last=%v want=%v", last, latest)

	other, err := repo.GetLastGradedTimestamp(ctx, exams[1].ID)
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestCreateSubmissions_DuplicateRollsBackBatch(t *testing.T) {
	repo := createTestRepository(t)
	ctx := context.Background()
	exams := seedFixtures(t, repo)
	graded := time.Date(2020, 6, 12, 16, 0, 0, 0, time.UTC)

	require.NoError(t, repo.CreateSubmissions(ctx, []model.Submission{
		newSubmission(exams[0].ID, 123456, "hpotter", graded, 100),
	}))

	err := repo.CreateSubmissions(ctx, []model.Submission{
		newSubmission(exams[0].ID, 123458, "rweasley", graded, 150),
		newSubmission(exams[0].ID, 123456, "hpotter", graded, 100),
	})
	require.Error(t, err)

	subs, err := repo.GetSubmissions(ctx, exams[0].ID, nil)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, int64(123456), subs[0].SubmissionID)
}

func TestMarkSubmissionsTransmitted(t *testing.T) {
	repo := createTestRepository(t)
	ctx := context.Background()
	exams := seedFixtures(t, repo)
	graded := time.Date(2020, 6, 12, 16, 0, 0, 0, time.UTC)

	require.NoError(t, repo.CreateSubmissions(ctx, []model.Submission{
		newSubmission(exams[0].ID, 1, "hpotter", graded, 100),
		newSubmission(exams[0].ID, 2, "hgranger", graded, 200),
		newSubmission(exams[0].ID, 3, "rweasley", graded.Add(time.Minute), 300),
	}))

	pending, err := repo.GetUntransmittedSubmissions(ctx, exams[0].ID)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.False(t, pending[0].Transmitted)
	assert.Nil(t, pending[0].TransmittedTimestamp)
	assert.True(t, pending[2].Score.Equal(decimal.NewFromInt(300)))

	sentAt := time.Date(2020, 6, 13, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repo.MarkSubmissionsTransmitted(ctx, []int64{pending[0].ID, pending[2].ID}, sentAt))

	pending, err = repo.GetUntransmittedSubmissions(ctx, exams[0].ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "hgranger", pending[0].StudentUniqname)

	sent, err := repo.GetTransmittedSince(ctx, exams[0].ID, sentAt)
	require.NoError(t, err)
	require.Len(t, sent, 2)
	require.NotNil(t, sent[0].TransmittedTimestamp)
	assert.True(t, sentAt.Equal(*sent[0].TransmittedTimestamp))

	later, err := repo.GetTransmittedSince(ctx, exams[0].ID, sentAt.Add(time.Second))
	require.NoError(t, err)
	assert.Empty(t, later)

	pendingCount, transmittedCount, err := repo.CountSubmissions(ctx, exams[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, pendingCount)
	assert.Equal(t, 2, transmittedCount)

	newCount, err := repo.CountGradedSince(ctx, exams[0].ID, graded.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, newCount)

	require.NoError(t, repo.MarkSubmissionsTransmitted(ctx, nil, sentAt))
}

func TestMySQLSchema_TimestampsKeepMicroseconds(t *testing.T) {
	for _, line := range strings.Split(schemaSQL, "\n") {
		if !strings.Contains(line, "DATETIME") {
			continue
		}
		assert.Contains(t, line, "DATETIME(6)", "column truncates to whole seconds: %s", strings.TrimSpace(line))
	}
}

func TestGetTransmittedSince_SameSecondAsStart(t *testing.T) {
	repo := createTestRepository(t)
	ctx := context.Background()
	exams := seedFixtures(t, repo)
	graded := time.Date(2020, 6, 12, 16, 0, 0, 0, time.UTC)

	require.NoError(t, repo.CreateSubmissions(ctx, []model.Submission{
		newSubmission(exams[0].ID, 1, "hpotter", graded, 100),
	}))
	pending, err := repo.GetUntransmittedSubmissions(ctx, exams[0].ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	start := time.Date(2020, 6, 13, 10, 0, 0, 300_000_000, time.UTC)
	sentAt := start.Add(100 * time.Millisecond)
	require.NoError(t, repo.MarkSubmissionsTransmitted(ctx, []int64{pending[0].ID}, sentAt))

	sent, err := repo.GetTransmittedSince(ctx, exams[0].ID, start)
	require.NoError(t, err)
	require.Len(t, sent, 1)
	require.NotNil(t, sent[0].TransmittedTimestamp)
	assert.True(t, sentAt.Equal(*sent[0].TransmittedTimestamp))
}

func TestMarkSubmissionsTransmitted_KeepsFirstTimestamp(t *testing.T) {
	repo := createTestRepository(t)
	ctx := context.Background()
	exams := seedFixtures(t, repo)
	graded := time.Date(2020, 6, 12, 16, 0, 0, 0, time.UTC)

	require.NoError(t, repo.CreateSubmissions(ctx, []model.Submission{
		newSubmission(exams[0].ID, 1, "hpotter", graded, 100),
	}))
	pending, err := repo.GetUntransmittedSubmissions(ctx, exams[0].ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	ids := []int64{pending[0].ID}

	first := time.Date(2020, 6, 13, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repo.MarkSubmissionsTransmitted(ctx, ids, first))
	require.NoError(t, repo.MarkSubmissionsTransmitted(ctx, ids, first.Add(time.Hour)))

	sent, err := repo.GetTransmittedSince(ctx, exams[0].ID, first)
	require.NoError(t, err)
	require.Len(t, sent, 1)
	require.NotNil(t, sent[0].TransmittedTimestamp)
	assert.True(t, first.Equal(*sent[0].TransmittedTimestamp), "got %v", sent[0].TransmittedTimestamp)
}
