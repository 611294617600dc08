// Package app wires the sync pipeline from configuration for the binaries.
package app

import (
	"github.com/tl-its-umich-edu/placement-exams/internal/config"
	"github.com/tl-its-umich-edu/placement-exams/internal/db"
	"github.com/tl-its-umich-edu/placement-exams/internal/logger"
	"github.com/tl-its-umich-edu/placement-exams/internal/queue"
	"github.com/tl-its-umich-edu/placement-exams/internal/report"
	"github.com/tl-its-umich-edu/placement-exams/internal/storage"
	"github.com/tl-its-umich-edu/placement-exams/internal/sync"
)

// NewArchive returns the S3 report archive, or nil when it is disabled.
func NewArchive(cfg *config.Config) (storage.Storage, error) {
	if !cfg.Storage.S3.Enabled {
		return nil, nil
	}
	s3, err := storage.NewS3Storage(cfg)
	if err != nil {
		return nil, err
	}
	return s3, nil
}

// NewRunner builds a Runner over repo. redisClient may be nil, in which case
// runs are not locked and reports are not queued for the mailer.
func NewRunner(cfg *config.Config, repo db.Repository, redisClient *queue.RedisClient) (*sync.Runner, error) {
	client, err := sync.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	var sinks []report.Sink
	var locker sync.Locker
	if redisClient != nil {
		sinks = append(sinks, report.NewQueueSink(queue.NewProducer(redisClient, cfg)))
		locker = redisClient.RunLock()
	}

	archive, err := NewArchive(cfg)
	if err != nil {
		return nil, err
	}
	if archive != nil {
		sinks = append(sinks, report.NewArchiveSink(archive, cfg.Storage.S3.ReportPrefix))
	}

	if len(sinks) == 0 {
		log := logger.Get()
		log.Warn().Msg("No report sinks configured; reports will only be logged")
	}

	service := sync.NewService(cfg, repo, client)
	return sync.NewRunner(repo, service, report.NewReporter(repo, sinks...), locker), nil
}
