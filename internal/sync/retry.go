package sync

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/tl-its-umich-edu/placement-exams/internal/logger"
	pkgerrors "github.com/tl-its-umich-edu/placement-exams/pkg/errors"

	"github.com/rs/zerolog"
)

// RetryingCaller repeats a read until it gets a 200 with a JSON body. Only
// idempotent reads go through it; score writes are sent exactly once.
type RetryingCaller struct {
	caller      Caller
	maxAttempts int
	delay       time.Duration
	log         zerolog.Logger
}

func NewRetryingCaller(caller Caller, maxAttempts int, delay time.Duration) *RetryingCaller {
	return &RetryingCaller{
		caller:      caller,
		maxAttempts: maxAttempts,
		delay:       delay,
		log:         logger.Get(),
	}
}

// IsResponseSuccessful reports whether resp is a 200 carrying well-formed JSON.
func IsResponseSuccessful(resp *Response) bool {
	if resp == nil || resp.StatusCode != http.StatusOK {
		return false
	}
	return json.Valid(resp.Body)
}

// Call returns the first successful response. It returns ErrNoResponse once
// every attempt has failed, ErrInvalidAttempts when maxAttempts <= 0, and any
// non-retryable error (token failure, cancelled context) immediately.
func (r *RetryingCaller) Call(ctx context.Context, req Request) (*Response, error) {
	if r.maxAttempts <= 0 {
		return nil, pkgerrors.ErrInvalidAttempts
	}

	r.log.Debug().Str("path", req.Path).Msg("Making a request for data")

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if attempt > 1 && r.delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.delay * time.Duration(attempt-1)):
			}
		}

		log := r.log.With().Int("attempt", attempt).Str("path", req.Path).Logger()

		resp, err := r.caller.Call(ctx, req)
		if err != nil {
			if !pkgerrors.IsRetryable(err) {
				return nil, err
			}
			log.Warn().Err(err).Msg("Request failed; beginning next attempt")
			continue
		}

		log.Debug().Str("url", resp.URL).Int("status", resp.StatusCode).Msg("Received response")

		if resp.StatusCode != http.StatusOK {
			log.Warn().Int("status", resp.StatusCode).Msg("Received irregular status code; beginning next attempt")
			continue
		}
		if !json.Valid(resp.Body) {
			log.Warn().Msg("Response body is not valid JSON; beginning next attempt")
			continue
		}
		return resp, nil
	}

	r.log.Error().
		Int("max_attempts", r.maxAttempts).
		Str("path", req.Path).
		Msg("The maximum number of request attempts was reached")
	return nil, pkgerrors.ErrNoResponse
}
