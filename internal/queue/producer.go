package queue

import (
	"context"
	"encoding/json"

	"github.com/tl-its-umich-edu/placement-exams/internal/config"
	"github.com/tl-its-umich-edu/placement-exams/internal/model"

	"github.com/go-redis/redis/v8"
)

type Producer struct {
	client redis.Cmdable
	cfg    *config.Config
}

func NewProducer(redisClient *RedisClient, cfg *config.Config) *Producer {
	return &Producer{
		client: redisClient.Client(),
		cfg:    cfg,
	}
}

func (p *Producer) EnqueueSyncJob(ctx context.Context, job model.SyncJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	return p.client.LPush(ctx, p.cfg.Redis.SyncQueue, data).Err()
}

// PublishReport hands a report summary to the mailer through the report queue.
func (p *Producer) PublishReport(ctx context.Context, summary model.ReportSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}

	return p.client.LPush(ctx, p.cfg.Redis.ReportQueue, data).Err()
}
