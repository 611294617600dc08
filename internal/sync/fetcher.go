package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tl-its-umich-edu/placement-exams/internal/config"
	"github.com/tl-its-umich-edu/placement-exams/internal/logger"
	"github.com/tl-its-umich-edu/placement-exams/internal/model"
	pkgerrors "github.com/tl-its-umich-edu/placement-exams/pkg/errors"

	"github.com/rs/zerolog"
)

// ISO8601Format is the layout Canvas expects for graded_since.
const ISO8601Format = "2006-01-02T15:04:05Z"

type FetchResult struct {
	Submissions []model.CanvasSubmission
	Discarded   int
	Pages       int
	Complete    bool
}

// Fetcher pages through Canvas graded submissions for one exam.
type Fetcher struct {
	caller    Caller
	urlPrefix string
	scope     string
	pageSize  int
	log       zerolog.Logger
}

func NewFetcher(caller Caller, cfg config.CanvasConfig) *Fetcher {
	return &Fetcher{
		caller:    caller,
		urlPrefix: cfg.URLPrefix,
		scope:     cfg.Scope,
		pageSize:  cfg.PageSize,
		log:       logger.Get(),
	}
}

func (f *Fetcher) submissionsPath(exam model.Exam) string {
	return fmt.Sprintf("%s/courses/%d/students/submissions", f.urlPrefix, exam.CourseID)
}

func (f *Fetcher) firstPageParams(exam model.Exam, since time.Time) url.Values {
	params := url.Values{}
	params.Set("student_ids[]", "all")
	params.Set("assignment_ids[]", strconv.FormatInt(exam.AssignmentID, 10))
	params.Set("per_page", strconv.Itoa(f.pageSize))
	params.Set("include[]", "user")
	params.Set("graded_since", since.UTC().Format(ISO8601Format))
	return params
}

// Fetch collects every graded submission since the watermark and drops the ones
// without a score. Retry exhaustion ends paging early and keeps what was
// gathered; only non-retryable errors are returned, alongside the partial result.
func (f *Fetcher) Fetch(ctx context.Context, exam model.Exam, since time.Time) (*FetchResult, error) {
	log := f.log.With().Int64("exam_id", exam.ID).Str("exam_name", exam.Name).Logger()

	result := &FetchResult{}
	var collected []model.CanvasSubmission

	params := f.firstPageParams(exam, since)
	log.Debug().Str("params", params.Encode()).Msg("Params for first request")

	for {
		log.Debug().Int("page", result.Pages+1).Msg("Requesting page")

		resp, err := f.caller.Call(ctx, Request{
			Path:   f.submissionsPath(exam),
			Scope:  f.scope,
			Method: http.MethodGet,
			Params: params,
		})
		if errors.Is(err, pkgerrors.ErrNoResponse) {
			log.Info().Msg("Failed to get a response; no more data will be collected")
			break
		}
		if err != nil {
			result.Submissions = filterScored(collected, result, log)
			return result, fmt.Errorf("failed to fetch submissions: %w", err)
		}

		var page []model.CanvasSubmission
		if err := json.Unmarshal(resp.Body, &page); err != nil {
			log.Error().Err(err).Msg("Failed to decode submissions page; no more data will be collected")
			break
		}
		collected = append(collected, page...)
		result.Pages++

		next, err := NextPageParams(resp)
		if err != nil {
			log.Error().Err(err).Msg("Failed to read next page link; no more data will be collected")
			break
		}
		if next == nil {
			result.Complete = true
			break
		}
		log.Debug().Str("params", next.Encode()).Msg("Params for next page")
		params = next
	}

	result.Submissions = filterScored(collected, result, log)
	log.Info().Int("count", len(result.Submissions)).Int("pages", result.Pages).Msg("Gathered submissions from Canvas")
	return result, nil
}

func filterScored(subs []model.CanvasSubmission, result *FetchResult, log zerolog.Logger) []model.CanvasSubmission {
	scored := make([]model.CanvasSubmission, 0, len(subs))
	for _, sub := range subs {
		if sub.Score.Valid {
			scored = append(scored, sub)
		}
	}

	result.Discarded = len(subs) - len(scored)
	if result.Discarded > 0 {
		log.Info().Int("discarded", result.Discarded).Msg("Discarded Canvas submissions with no score")
	}
	return scored
}
