package report

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/tl-its-umich-edu/placement-exams/internal/excel"
	"github.com/tl-its-umich-edu/placement-exams/internal/model"
	"github.com/tl-its-umich-edu/placement-exams/internal/storage"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Publisher interface {
	PublishReport(ctx context.Context, summary model.ReportSummary) error
}

// QueueSink pushes summaries onto the report queue read by the mailer.
type QueueSink struct {
	publisher Publisher
}

func NewQueueSink(publisher Publisher) *QueueSink {
	return &QueueSink{publisher: publisher}
}

func (s *QueueSink) Name() string { return "queue" }

func (s *QueueSink) Deliver(ctx context.Context, summary model.ReportSummary) error {
	return s.publisher.PublishReport(ctx, summary)
}

// ArchiveSink stores each summary as JSON and as a workbook.
type ArchiveSink struct {
	store  storage.Storage
	prefix string
}

func NewArchiveSink(store storage.Storage, prefix string) *ArchiveSink {
	return &ArchiveSink{store: store, prefix: prefix}
}

func (s *ArchiveSink) Name() string { return "archive" }

// ArchiveKey is the object key of a run's report without extension.
func ArchiveKey(prefix, reportName, runID string) string {
	return path.Join(prefix, reportName, runID)
}

func (s *ArchiveSink) Deliver(ctx context.Context, summary model.ReportSummary) error {
	key := ArchiveKey(s.prefix, summary.Report.Name, summary.RunID)

	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := s.store.Upload(ctx, key+".json", data, "application/json"); err != nil {
		return fmt.Errorf("failed to upload %s.json: %w", key, err)
	}

	workbook, err := excel.BuildReportWorkbook(summary)
	if err != nil {
		return err
	}
	if err := s.store.Upload(ctx, key+".xlsx", workbook, xlsxContentType); err != nil {
		return fmt.Errorf("failed to upload %s.xlsx: %w", key, err)
	}
	return nil
}
