package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type SyncJob struct {
	RequestedBy string    `json:"requested_by"`
	RequestedAt time.Time `json:"requested_at"`
}

type SyncRequest struct {
	RequestedBy string `json:"requested_by"`
}

// CanvasSubmission is one element of the Canvas "students/submissions" response.
type CanvasSubmission struct {
	ID          int64               `json:"id"`
	Attempt     *int                `json:"attempt"`
	User        CanvasUser          `json:"user"`
	SubmittedAt *time.Time          `json:"submitted_at"`
	GradedAt    time.Time           `json:"graded_at"`
	Score       decimal.NullDecimal `json:"score"`
}

type CanvasUser struct {
	ID      int64  `json:"id"`
	LoginID string `json:"login_id"`
}

type ScoreEntry struct {
	ID          string `json:"ID"`
	Form        string `json:"Form"`
	GradePoints string `json:"GradePoints"`
}

type ScoreStudents struct {
	Student []ScoreEntry `json:"Student"`
}

// NewScorePayload wraps entries as {"<schema>": {"Student": [...]}}.
func NewScorePayload(schema string, entries []ScoreEntry) map[string]ScoreStudents {
	return map[string]ScoreStudents{schema: {Student: entries}}
}

type ScoreResults struct {
	BadCount  int             `json:"BadCount"`
	GoodCount int             `json:"GoodCount"`
	Errors    json.RawMessage `json:"Errors,omitempty"`
	Success   SuccessList     `json:"Success"`
}

// Uniqnames returns the student identifiers M-Pathways accepted.
func (r *ScoreResults) Uniqnames() []string {
	names := make([]string, 0, len(r.Success))
	for _, s := range r.Success {
		if id := s.Student(); id != "" {
			names = append(names, id)
		}
	}
	return names
}

type ScoreSuccess struct {
	Uniqname string `json:"uniqname"`
	ID       string `json:"ID,omitempty"`
}

func (s ScoreSuccess) Student() string {
	if s.Uniqname != "" {
		return s.Uniqname
	}
	return s.ID
}

// SuccessList accepts the three shapes M-Pathways uses for Success depending on
// GoodCount: nothing (absent, null or ""), a single object, or an array.
type SuccessList []ScoreSuccess

func (l *SuccessList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte(`""`)) {
		*l = nil
		return nil
	}

	switch trimmed[0] {
	case '[':
		var items []ScoreSuccess
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return fmt.Errorf("failed to decode Success list: %w", err)
		}
		*l = items
	case '{':
		var item ScoreSuccess
		if err := json.Unmarshal(trimmed, &item); err != nil {
			return fmt.Errorf("failed to decode Success object: %w", err)
		}
		*l = SuccessList{item}
	default:
		return fmt.Errorf("unexpected Success value: %s", trimmed)
	}
	return nil
}

// ParseScoreResponse digs the results out of {"<schema>Response": {"<schema>Response": {...}}}.
func ParseScoreResponse(body []byte, schema string) (*ScoreResults, error) {
	name := schema + "Response"

	var outer map[string]json.RawMessage
	if err := json.Unmarshal(body, &outer); err != nil {
		return nil, fmt.Errorf("failed to decode score response: %w", err)
	}
	rawOuter, ok := outer[name]
	if !ok {
		return nil, fmt.Errorf("score response is missing %q", name)
	}

	var inner map[string]json.RawMessage
	if err := json.Unmarshal(rawOuter, &inner); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", name, err)
	}
	rawResults, ok := inner[name]
	if !ok {
		return nil, fmt.Errorf("score response is missing %s.%s", name, name)
	}

	var results ScoreResults
	if err := json.Unmarshal(rawResults, &results); err != nil {
		return nil, fmt.Errorf("failed to decode score results: %w", err)
	}
	return &results, nil
}
