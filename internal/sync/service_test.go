package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tl-its-umich-edu/placement-exams/internal/model"
	pkgerrors "github.com/tl-its-umich-edu/placement-exams/pkg/errors"
)

// apiDirectory routes Canvas reads and M-Pathways writes to separate handlers.
func apiDirectory(canvas, mpathways func(n int, req Request) (*Response, error)) *fakeCaller {
	reads, writes := 0, 0
	return &fakeCaller{handle: func(_ int, req Request) (*Response, error) {
		if req.Method == http.MethodGet {
			reads++
			return canvas(reads, req)
		}
		writes++
		return mpathways(writes, req)
	}}
}

// acceptAll answers every score write by accepting each student in the payload.
func acceptAll(_ int, req Request) (*Response, error) {
	var payload map[string]model.ScoreStudents
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range payload[testSchema].Student {
		names = append(names, entry.ID)
	}
	return jsonResponse(http.StatusOK, scoreResponse(testSchema, 0, names...)), nil
}

func emptyCanvas(int, Request) (*Response, error) {
	return jsonResponse(http.StatusOK, `[]`), nil
}

func TestRunExam_ScenarioA_FetchPersistTransmit(t *testing.T) {
	graded := time.Date(2020, 6, 12, 16, 0, 0, 0, time.UTC)
	repo := newFakeRepository()
	caller := apiDirectory(func(int, Request) (*Response, error) {
		return jsonResponse(http.StatusOK, canvasPage(
			record(444444, "hpotter", graded, scorePtr(100)),
			record(444445, "hgranger", graded.Add(time.Minute), scorePtr(200)),
		)), nil
	}, acceptAll)

	service := NewService(testConfig(), repo, caller)
	start := time.Now().UTC()

	run, err := service.RunExam(context.Background(), potionsExam())
	require.NoError(t, err)
	assert.Equal(t, 2, run.Fetched)
	assert.Equal(t, 2, run.Inserted)
	assert.Equal(t, 1, run.Batches)
	assert.Equal(t, 2, run.Transmitted)
	assert.Empty(t, run.Err)
	assert.True(t, potionsExam().DefaultTimeFilter.Equal(run.SubTimeFilter))

	require.Len(t, repo.submissions, 2)
	for _, sub := range repo.submissions {
		assert.True(t, sub.Transmitted)
		require.NotNil(t, sub.TransmittedTimestamp)
		assert.False(t, sub.TransmittedTimestamp.Before(start))
	}
	assert.Len(t, caller.callsFor(http.MethodPut), 1)
}

func TestRunExam_ScenarioB_SourceUnavailable(t *testing.T) {
	repo := newFakeRepository()
	caller := apiDirectory(func(int, Request) (*Response, error) {
		return jsonResponse(http.StatusGatewayTimeout, `{}`), nil
	}, acceptAll)

	run, err := NewService(testConfig(), repo, caller).RunExam(context.Background(), potionsExam())
	require.NoError(t, err)
	assert.Zero(t, run.Fetched)
	assert.Empty(t, repo.submissions)
	assert.Len(t, caller.callsFor(http.MethodGet), 3)
	assert.Empty(t, caller.callsFor(http.MethodPut))
}

func TestRunExam_ScenarioC_PartialSuccess(t *testing.T) {
	graded := time.Date(2020, 6, 12, 16, 0, 0, 0, time.UTC)
	repo := newFakeRepository()
	caller := apiDirectory(func(int, Request) (*Response, error) {
		return jsonResponse(http.StatusOK, canvasPage(
			record(444444, "hpotter", graded, scorePtr(100)),
			record(444445, "dmalfoy", graded, scorePtr(50)),
		)), nil
	}, func(int, Request) (*Response, error) {
		return jsonResponse(http.StatusOK, scoreResponse(testSchema, 1, "hpotter")), nil
	})

	service := NewService(testConfig(), repo, caller)
	run, err := service.RunExam(context.Background(), potionsExam())
	require.NoError(t, err)
	assert.Equal(t, 1, run.Transmitted)
	assert.True(t, repo.byUniqname("hpotter")[0].Transmitted)
	assert.False(t, repo.byUniqname("dmalfoy")[0].Transmitted)

	// The rejected record is selected again on the next run.
	pending, err := repo.GetUntransmittedSubmissions(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "dmalfoy", pending[0].StudentUniqname)
}

func TestRunExam_ScenarioD_RepeatStudentSentSeparately(t *testing.T) {
	graded := time.Date(2020, 6, 12, 16, 0, 0, 0, time.UTC)
	repo := newFakeRepository()
	caller := apiDirectory(func(int, Request) (*Response, error) {
		return jsonResponse(http.StatusOK, canvasPage(
			record(444444, "rweasley", graded, scorePtr(100)),
			record(444445, "hpotter", graded, scorePtr(150)),
			record(444446, "rweasley", graded.Add(time.Minute), scorePtr(200)),
		)), nil
	}, acceptAll)

	run, err := NewService(testConfig(), repo, caller).RunExam(context.Background(), potionsExam())
	require.NoError(t, err)
	assert.Equal(t, 3, run.Batches)
	assert.Equal(t, 3, run.Transmitted)

	writes := caller.callsFor(http.MethodPut)
	require.Len(t, writes, 3)

	var sizes []int
	var firstBatch []string
	for i, req := range writes {
		var payload map[string]model.ScoreStudents
		require.NoError(t, json.Unmarshal(req.Body, &payload))
		students := payload[testSchema].Student
		sizes = append(sizes, len(students))
		if i == 0 {
			for _, s := range students {
				firstBatch = append(firstBatch, s.ID)
			}
		} else {
			assert.Equal(t, "rweasley", students[0].ID)
		}
	}
	assert.Equal(t, []int{1, 1, 1}, sizes)
	assert.Equal(t, []string{"hpotter"}, firstBatch)
}

func TestRunExam_ScenarioE_SinkFailureIsRetriedNextRun(t *testing.T) {
	graded := time.Date(2020, 6, 12, 16, 0, 0, 0, time.UTC)
	repo := newFakeRepository()
	sinkDown := true
	caller := apiDirectory(func(n int, _ Request) (*Response, error) {
		if n == 1 {
			return jsonResponse(http.StatusOK, canvasPage(
				record(444444, "hpotter", graded, scorePtr(100)),
				record(444445, "hgranger", graded, scorePtr(200)),
			)), nil
		}
		return jsonResponse(http.StatusOK, `[]`), nil
	}, func(n int, req Request) (*Response, error) {
		if sinkDown {
			return jsonResponse(http.StatusInternalServerError, `{"error": "unavailable"}`), nil
		}
		return acceptAll(n, req)
	})
	service := NewService(testConfig(), repo, caller)

	run, err := service.RunExam(context.Background(), potionsExam())
	require.NoError(t, err)
	assert.Equal(t, 1, run.FailedBatches)
	assert.Zero(t, repo.markCalls)
	for _, sub := range repo.submissions {
		assert.False(t, sub.Transmitted)
	}

	sinkDown = false
	run, err = service.RunExam(context.Background(), potionsExam())
	require.NoError(t, err)
	assert.Zero(t, run.Inserted)
	assert.Equal(t, 2, run.Transmitted)
	assert.Equal(t, graded.Add(time.Second), run.SubTimeFilter)

	writes := caller.callsFor(http.MethodPut)
	require.Len(t, writes, 2)
	assert.Equal(t, writes[0].Body, writes[1].Body)
}

func TestRunExam_ContinuesPastFailedChunks(t *testing.T) {
	graded := time.Date(2020, 6, 12, 16, 0, 0, 0, time.UTC)
	repo := newFakeRepository()
	seedPending(repo,
		storedSubmission(1, "hpotter", graded, 100),
		storedSubmission(2, "hgranger", graded, 200),
		storedSubmission(3, "rweasley", graded, 150),
	)
	caller := apiDirectory(emptyCanvas, func(n int, req Request) (*Response, error) {
		if n == 1 {
			return nil, errors.New("connection reset")
		}
		return acceptAll(n, req)
	})

	cfg := testConfig()
	cfg.Sync.ChunkSize = 2
	run, err := NewService(cfg, repo, caller).RunExam(context.Background(), potionsExam())
	require.NoError(t, err)
	assert.Equal(t, 2, run.Batches)
	assert.Equal(t, 1, run.FailedBatches)
	assert.Equal(t, 1, run.Transmitted)
	assert.True(t, repo.byUniqname("rweasley")[0].Transmitted)
	assert.False(t, repo.byUniqname("hpotter")[0].Transmitted)
}

func TestRunExam_PersistFailureStillSendsPending(t *testing.T) {
	graded := time.Date(2020, 6, 12, 16, 0, 0, 0, time.UTC)
	repo := newFakeRepository()
	seedPending(repo, storedSubmission(1, "hpotter", graded, 100))
	repo.createErr = errors.New("Error 1062: Duplicate entry")

	caller := apiDirectory(func(int, Request) (*Response, error) {
		return jsonResponse(http.StatusOK, canvasPage(record(444445, "hgranger", graded, scorePtr(200)))), nil
	}, acceptAll)

	run, err := NewService(testConfig(), repo, caller).RunExam(context.Background(), potionsExam())
	require.NoError(t, err)
	assert.Zero(t, run.Inserted)
	assert.NotEmpty(t, run.Err)
	assert.Equal(t, 1, run.Transmitted)
	assert.Len(t, repo.submissions, 1)
}

func TestPersister_TrimsUniqnameAndMapsFields(t *testing.T) {
	graded := time.Date(2020, 6, 12, 16, 0, 0, 0, time.UTC)
	repo := newFakeRepository()

	var records []model.CanvasSubmission
	require.NoError(t, json.Unmarshal([]byte(canvasPage(
		record(444444, "  hpotter\t", graded, scorePtr(99.5)),
	)), &records))

	inserted, err := NewPersister(repo).Persist(context.Background(), potionsExam(), records)
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)

	sub := repo.submissions[0]
	assert.Equal(t, "hpotter", sub.StudentUniqname)
	assert.Equal(t, int64(444444), sub.SubmissionID)
	assert.Equal(t, int64(1), sub.ExamID)
	require.NotNil(t, sub.AttemptNum)
	assert.Equal(t, 1, *sub.AttemptNum)
	assert.True(t, graded.Equal(sub.GradedTimestamp))
	assert.Equal(t, "99.5", sub.Score.String())
	assert.False(t, sub.Transmitted)
	assert.Nil(t, sub.TransmittedTimestamp)

	inserted, err = NewPersister(repo).Persist(context.Background(), potionsExam(), nil)
	require.NoError(t, err)
	assert.Zero(t, inserted)
}

func rejectedCredentials(int, Request) (*Response, error) {
	return nil, fmt.Errorf("%w: invalid_client", pkgerrors.ErrAuthentication)
}

func TestRunExam_RejectedReadCredentialsAbort(t *testing.T) {
	graded := time.Date(2020, 6, 12, 16, 0, 0, 0, time.UTC)
	repo := newFakeRepository()
	seedPending(repo, storedSubmission(1, "hpotter", graded, 100))
	caller := apiDirectory(rejectedCredentials, acceptAll)

	run, err := NewService(testConfig(), repo, caller).RunExam(context.Background(), potionsExam())
	assert.ErrorIs(t, err, pkgerrors.ErrAuthentication)
	require.NotNil(t, run)
	assert.Contains(t, run.Err, "invalid_client")
	assert.Len(t, caller.callsFor(http.MethodGet), 1)
	assert.Empty(t, caller.callsFor(http.MethodPut))
}

func TestRunExam_RejectedWriteCredentialsAbort(t *testing.T) {
	graded := time.Date(2020, 6, 12, 16, 0, 0, 0, time.UTC)
	repo := newFakeRepository()
	seedPending(repo,
		storedSubmission(1, "hpotter", graded, 100),
		storedSubmission(2, "hpotter", graded.Add(time.Minute), 150),
	)
	caller := apiDirectory(emptyCanvas, rejectedCredentials)

	run, err := NewService(testConfig(), repo, caller).RunExam(context.Background(), potionsExam())
	assert.ErrorIs(t, err, pkgerrors.ErrAuthentication)
	assert.Equal(t, 1, run.Batches)
	assert.Equal(t, 1, run.FailedBatches)
	assert.Len(t, caller.callsFor(http.MethodPut), 1)
	assert.Zero(t, repo.markCalls)
}
