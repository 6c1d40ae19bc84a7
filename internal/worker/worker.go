package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/digitalequity/seasure-sp2/internal/queue"
)

// Handler processes one dequeued job. A non-nil error triggers the
// retry/DLQ path.
type Handler interface {
	Handle(ctx context.Context, job queue.Job) error
}

type WorkerPool struct {
	Redis      *redis.Client
	WorkerNum  int
	JobChannel chan string
	handler    Handler
	wg         sync.WaitGroup
}

func NewWorkerPool(redis *redis.Client, workerNum int, handler Handler) *WorkerPool {
	return &WorkerPool{
		Redis:      redis,
		WorkerNum:  workerNum,
		JobChannel: make(chan string, 100),
		handler:    handler,
	}
}

func (wp *WorkerPool) Start(ctx context.Context) {
	log.Info().Msgf("Starting worker pool with %d workers", wp.WorkerNum)

	for i := 0; i < wp.WorkerNum; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}

	go func() {
		defer close(wp.JobChannel)
		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("Stopping worker pool")
				return
			default:
				now := float64(time.Now().Unix())
				result, err := wp.Redis.ZRangeByScore(ctx, queue.QueueKey, &redis.ZRangeBy{
					Min:    "-inf",
					Max:    fmt.Sprintf("%f", now),
					Offset: 0,
					Count:  1,
				}).Result()

				if err != nil {
					if err != redis.Nil {
						log.Error().Err(err).Msg("Worker: failed to pop job")
					}
					time.Sleep(1 * time.Second)
					continue
				}

				if len(result) == 0 {
					time.Sleep(1 * time.Second)
					continue
				}

				payload := result[0]
				removed, err := wp.Redis.ZRem(ctx, queue.QueueKey, payload).Result()
				if err != nil || removed == 0 {
					// Another poller claimed it first.
					continue
				}
				wp.JobChannel <- payload
			}
		}
	}()
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()
	log.Info().Msgf("Worker %d started", id)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msgf("Worker %d stopping", id)
			return
		case payload, ok := <-wp.JobChannel:
			if !ok {
				return
			}

			var job queue.Job
			if err := json.Unmarshal([]byte(payload), &job); err != nil {
				log.Warn().Err(err).Msgf("Worker %d: failed to unmarshal job payload", id)
				continue
			}
			if err := wp.handler.Handle(ctx, job); err != nil {
				wp.requeue(ctx, job, err)
			}
		}
	}
}

func (wp *WorkerPool) requeue(ctx context.Context, job queue.Job, cause error) {
	job.Retry++
	job.ErrorMsg = cause.Error()

	now := time.Now().Unix()
	if job.Retry >= job.MaxRetry || now > job.ExpireAt {
		log.Error().Str("job_id", job.ID).Str("type", job.Type).Msg("Job moved to DLQ")
		dlqBytes, _ := json.Marshal(job)
		wp.Redis.RPush(ctx, queue.DLQKey, dlqBytes)

		sendDLA(job)
		return
	}

	delay := time.Duration(5*(1<<job.Retry)) * time.Second // exponential backoff
	retryAt := time.Now().Add(delay).Unix()

	jobBytes, _ := json.Marshal(job)
	wp.Redis.ZAdd(ctx, queue.QueueKey, redis.Z{
		Score:  float64(retryAt),
		Member: jobBytes,
	})
	log.Warn().Str("job_id", job.ID).Err(cause).Msgf("Retrying in %v seconds (%d/%d)", delay.Seconds(), job.Retry, job.MaxRetry)
}

var dlaCache = make(map[string]time.Time)
var dlaMu sync.Mutex

// sendDLA raises a dead-letter alert, at most one per job type per ten
// minutes so a stuck downstream does not flood the log.
func sendDLA(job queue.Job) {
	dlaMu.Lock()
	defer dlaMu.Unlock()

	now := time.Now()
	lastAlert, ok := dlaCache[job.Type]
	if ok && now.Sub(lastAlert) < 10*time.Minute {
		return
	}

	log.Error().Str("job_id", job.ID).Str("type", job.Type).Str("error", job.ErrorMsg).Msg("Dead Letter Alert: job failed permanently")

	dlaCache[job.Type] = now
}

func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
	log.Info().Msg("All workers have stopped")
}
