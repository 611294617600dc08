package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tl-its-umich-edu/placement-exams/internal/config"
	"github.com/tl-its-umich-edu/placement-exams/internal/db"
	"github.com/tl-its-umich-edu/placement-exams/internal/logger"
	"github.com/tl-its-umich-edu/placement-exams/internal/model"
	pkgerrors "github.com/tl-its-umich-edu/placement-exams/pkg/errors"

	"github.com/rs/zerolog"
)

type SendResult struct {
	Sent      int
	Accepted  int
	Marked    int
	BadCount  int
	GoodCount int
}

// Transmitter writes score batches to M-Pathways. Writes are not retried: a
// batch that fails stays untransmitted and is picked up by the next run.
type Transmitter struct {
	caller Caller
	repo   db.Repository
	path   string
	scope  string
	schema string
	now    func() time.Time
	log    zerolog.Logger
}

func NewTransmitter(caller Caller, repo db.Repository, cfg config.MPathwaysConfig) *Transmitter {
	return &Transmitter{
		caller: caller,
		repo:   repo,
		path:   cfg.ScoresPath,
		scope:  cfg.Scope,
		schema: cfg.SchemaName,
		now:    time.Now,
		log:    logger.Get(),
	}
}

// SendScores sends one batch in a single PUT and marks the submissions whose
// uniqname came back in Success as transmitted, all with the same timestamp.
func (t *Transmitter) SendScores(ctx context.Context, exam model.Exam, batch []model.Submission) (*SendResult, error) {
	if len(batch) == 0 {
		return nil, pkgerrors.ErrEmptyBatch
	}

	log := t.log.With().Int64("exam_id", exam.ID).Str("sa_code", exam.SACode).Int("batch_size", len(batch)).Logger()

	entries := make([]model.ScoreEntry, len(batch))
	for i, sub := range batch {
		entries[i] = sub.PrepareScore(exam.SACode)
	}

	body, err := json.Marshal(model.NewScorePayload(t.schema, entries))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal score payload: %w", err)
	}

	resp, err := t.caller.Call(ctx, Request{
		Path:    t.path,
		Scope:   t.scope,
		Method:  http.MethodPut,
		Body:    body,
		Headers: map[string]string{"Content-Type": "application/json"},
	})
	if err != nil {
		log.Error().Err(err).Msg("Score request failed")
		return nil, fmt.Errorf("failed to send scores: %w", err)
	}

	if !IsResponseSuccessful(resp) {
		log.Error().Int("status", resp.StatusCode).Str("url", resp.URL).Msg("Unsuccessful response from M-Pathways")
		return nil, fmt.Errorf("%w: status %d", pkgerrors.ErrUnsuccessfulResponse, resp.StatusCode)
	}

	results, err := model.ParseScoreResponse(resp.Body, t.schema)
	if err != nil {
		log.Error().Err(err).Msg("Failed to parse M-Pathways response")
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrUnsuccessfulResponse, err)
	}

	if results.BadCount > 0 {
		log.Warn().
			Int("bad_count", results.BadCount).
			RawJSON("errors", rawOrNull(results.Errors)).
			Msg("Discovered errors in response")
	}

	accepted := make(map[string]struct{}, len(results.Success))
	for _, uniqname := range results.Uniqnames() {
		accepted[uniqname] = struct{}{}
	}

	var ids []int64
	for _, sub := range batch {
		if _, ok := accepted[sub.StudentUniqname]; ok {
			ids = append(ids, sub.ID)
		}
	}

	transmittedAt := t.now().UTC()
	if err := t.repo.MarkSubmissionsTransmitted(ctx, ids, transmittedAt); err != nil {
		log.Error().Err(err).Msg("Failed to mark submissions as transmitted")
		return nil, fmt.Errorf("failed to mark submissions transmitted: %w", err)
	}

	log.Info().Int("marked", len(ids)).Int("good_count", results.GoodCount).Msg("Updated submissions as transmitted")

	return &SendResult{
		Sent:      len(batch),
		Accepted:  len(accepted),
		Marked:    len(ids),
		BadCount:  results.BadCount,
		GoodCount: results.GoodCount,
	}, nil
}

func rawOrNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}
