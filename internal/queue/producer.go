package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	QueueKey = "chat:jobs"
	DLQKey   = "chat:jobs:dlq"
)

type Producer interface {
	Enqueue(ctx context.Context, job Job) error
}

type RedisProducer struct {
	Redis *redis.Client
}

func NewProducer(redis *redis.Client) Producer {
	return &RedisProducer{Redis: redis}
}

func (p *RedisProducer) Enqueue(ctx context.Context, job Job) error {
	jobBytes, err := json.Marshal(job)
	if err != nil {
		return err
	}

	// Score is the time the job becomes eligible to run. Fresh jobs are
	// eligible immediately, retries are re-added with a future score.
	return p.Redis.ZAdd(ctx, QueueKey, redis.Z{
		Score:  float64(job.CreatedAt),
		Member: jobBytes,
	}).Err()
}

// NewJob fills the envelope boilerplate for an immediate job.
func NewJob(jobType string, payload any, priority, maxRetry int, ttl time.Duration) Job {
	now := time.Now()
	return Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		Payload:   MustMarshal(payload),
		Priority:  priority,
		MaxRetry:  maxRetry,
		CreatedAt: now.Unix(),
		ExpireAt:  now.Add(ttl).Unix(),
	}
}
