package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	gosync "sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tl-its-umich-edu/placement-exams/internal/config"
	"github.com/tl-its-umich-edu/placement-exams/internal/model"
	pkgerrors "github.com/tl-its-umich-edu/placement-exams/pkg/errors"
)

// fakeCaller answers requests through handle and records every request it sees.
type fakeCaller struct {
	mu       gosync.Mutex
	requests []Request
	handle   func(n int, req Request) (*Response, error)
}

func (f *fakeCaller) Call(_ context.Context, req Request) (*Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	n := len(f.requests)
	f.mu.Unlock()
	return f.handle(n, req)
}

func (f *fakeCaller) callsFor(method string) []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Request
	for _, req := range f.requests {
		if req.Method == method {
			out = append(out, req)
		}
	}
	return out
}

func jsonResponse(status int, body string) *Response {
	return &Response{StatusCode: status, Header: http.Header{}, Body: []byte(body), URL: "https://api.example.edu/test"}
}

// fakeRepository is an in-memory db.Repository.
type fakeRepository struct {
	mu          gosync.Mutex
	reports     []model.Report
	exams       []model.Exam
	submissions []model.Submission
	nextID      int64
	createErr   error
	markCalls   int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{nextID: 1}
}

func (r *fakeRepository) ListReports(context.Context) ([]model.Report, error) {
	return append([]model.Report(nil), r.reports...), nil
}

func (r *fakeRepository) ListExams(context.Context) ([]model.Exam, error) {
	return append([]model.Exam(nil), r.exams...), nil
}

func (r *fakeRepository) GetExam(_ context.Context, examID int64) (*model.Exam, error) {
	for _, exam := range r.exams {
		if exam.ID == examID {
			e := exam
			return &e, nil
		}
	}
	return nil, pkgerrors.ErrExamNotFound
}

func (r *fakeRepository) UpsertFixtures(_ context.Context, reports []model.Report, exams []model.Exam) error {
	r.reports = append(r.reports, reports...)
	r.exams = append(r.exams, exams...)
	return nil
}

func (r *fakeRepository) GetLastGradedTimestamp(_ context.Context, examID int64) (*time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var last *time.Time
	for _, sub := range r.submissions {
		if sub.ExamID != examID {
			continue
		}
		if last == nil || sub.GradedTimestamp.After(*last) {
			t := sub.GradedTimestamp
			last = &t
		}
	}
	return last, nil
}

func (r *fakeRepository) CreateSubmissions(_ context.Context, subs []model.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	seen := make(map[int64]bool)
	for _, sub := range r.submissions {
		seen[sub.SubmissionID] = true
	}
	for _, sub := range subs {
		if seen[sub.SubmissionID] {
			return fmt.Errorf("duplicate submission_id %d", sub.SubmissionID)
		}
		seen[sub.SubmissionID] = true
	}
	for _, sub := range subs {
		sub.ID = r.nextID
		r.nextID++
		r.submissions = append(r.submissions, sub)
	}
	return nil
}

func (r *fakeRepository) GetUntransmittedSubmissions(ctx context.Context, examID int64) ([]model.Submission, error) {
	f := false
	return r.GetSubmissions(ctx, examID, &f)
}

func (r *fakeRepository) MarkSubmissionsTransmitted(_ context.Context, ids []int64, transmittedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markCalls++
	for _, id := range ids {
		for i := range r.submissions {
			if r.submissions[i].ID == id && !r.submissions[i].Transmitted {
				ts := transmittedAt
				r.submissions[i].Transmitted = true
				r.submissions[i].TransmittedTimestamp = &ts
			}
		}
	}
	return nil
}

func (r *fakeRepository) GetSubmissions(_ context.Context, examID int64, transmitted *bool) ([]model.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Submission
	for _, sub := range r.submissions {
		if sub.ExamID != examID {
			continue
		}
		if transmitted != nil && sub.Transmitted != *transmitted {
			continue
		}
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeRepository) GetTransmittedSince(_ context.Context, examID int64, since time.Time) ([]model.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Submission
	for _, sub := range r.submissions {
		if sub.ExamID == examID && sub.Transmitted && !sub.TransmittedTimestamp.Before(since) {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (r *fakeRepository) CountGradedSince(_ context.Context, examID int64, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, sub := range r.submissions {
		if sub.ExamID == examID && !sub.GradedTimestamp.Before(since) {
			count++
		}
	}
	return count, nil
}

func (r *fakeRepository) CountSubmissions(_ context.Context, examID int64) (int, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pending, transmitted := 0, 0
	for _, sub := range r.submissions {
		if sub.ExamID != examID {
			continue
		}
		if sub.Transmitted {
			transmitted++
		} else {
			pending++
		}
	}
	return pending, transmitted, nil
}

func (r *fakeRepository) byUniqname(name string) []model.Submission {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Submission
	for _, sub := range r.submissions {
		if sub.StudentUniqname == name {
			out = append(out, sub)
		}
	}
	return out
}

func testConfig() *config.Config {
	return &config.Config{
		ExternalAPI: config.ExternalAPIConfig{
			Canvas: config.CanvasConfig{
				URLPrefix: "aa/CanvasReadOnly",
				Scope:     "canvasreadonly",
				PageSize:  50,
			},
			MPathways: config.MPathwaysConfig{
				ScoresPath: "aa/SpanishPlacementScores/Scores",
				Scope:      "spanishplacementscores",
				SchemaName: "putPlcExamScore",
			},
		},
		Sync: config.SyncConfig{
			MaxReqAttempts: 3,
			ChunkSize:      100,
		},
	}
}

func potionsExam() model.Exam {
	reportID := int64(1)
	return model.Exam{
		ID:                1,
		SACode:            "PP",
		Name:              "Potions Placement",
		ReportID:          &reportID,
		CourseID:          888888,
		AssignmentID:      111111,
		DefaultTimeFilter: time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

type canvasRecord struct {
	ID          int64      `json:"id"`
	Attempt     int        `json:"attempt"`
	User        canvasUser `json:"user"`
	SubmittedAt time.Time  `json:"submitted_at"`
	GradedAt    time.Time  `json:"graded_at"`
	Score       *float64   `json:"score"`
}

type canvasUser struct {
	ID      int64  `json:"id"`
	LoginID string `json:"login_id"`
}

func scorePtr(v float64) *float64 { return &v }

func canvasPage(records ...canvasRecord) string {
	data, err := json.Marshal(records)
	if err != nil {
		panic(err)
	}
	return string(data)
}

func record(id int64, login string, graded time.Time, score *float64) canvasRecord {
	return canvasRecord{
		ID:          id,
		Attempt:     1,
		User:        canvasUser{ID: id + 1000, LoginID: login},
		SubmittedAt: graded.Add(-time.Hour),
		GradedAt:    graded,
		Score:       score,
	}
}

// scoreResponse builds an M-Pathways reply where every uniqname in good was accepted.
func scoreResponse(schema string, bad int, good ...string) string {
	var success any
	switch len(good) {
	case 0:
		success = ""
	case 1:
		success = map[string]string{"uniqname": good[0]}
	default:
		items := make([]map[string]string, len(good))
		for i, name := range good {
			items[i] = map[string]string{"uniqname": name}
		}
		success = items
	}

	results := map[string]any{
		"BadCount":  bad,
		"GoodCount": len(good),
		"Success":   success,
	}
	if bad > 0 {
		results["Errors"] = map[string]string{"Error": "Invalid student ID"}
	}

	name := schema + "Response"
	data, err := json.Marshal(map[string]any{name: map[string]any{name: results}})
	if err != nil {
		panic(err)
	}
	return string(data)
}

func storedSubmission(id int64, uniqname string, graded time.Time, score int64) model.Submission {
	return model.Submission{
		ID:              id,
		SubmissionID:    id + 100000,
		ExamID:          1,
		StudentUniqname: uniqname,
		GradedTimestamp: graded,
		Score:           decimal.NewFromInt(score),
	}
}
