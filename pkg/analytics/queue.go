package analytics

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueEvents is the Redis list key analytics jobs are pushed onto.
	QueueEvents = "analytics:events"

	enqueueTimeout = 5 * time.Second
)

// Job is the envelope pushed onto the Redis list for the host's delivery
// worker to drain.
type Job struct {
	ID        string                 `json:"id"`
	Event     string                 `json:"event"`
	Props     map[string]interface{} `json:"props,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// Queue is a Tracker that enqueues events onto a Redis list.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
}

// NewQueue creates a Redis-backed tracker.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

// Track enqueues one event. Failures are logged, never surfaced: analytics
// loss must not disturb the engagement path.
func (q *Queue) Track(event string, props map[string]interface{}) {
	job := Job{
		ID:        uuid.New().String(),
		Event:     event,
		Props:     props,
		CreatedAt: time.Now(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		q.logger.Warn("analytics job encode failed", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), enqueueTimeout)
	defer cancel()
	if err := q.client.RPush(ctx, QueueEvents, raw).Err(); err != nil {
		q.logger.Warn("analytics enqueue failed", zap.String("event", event), zap.Error(err))
		return
	}
	q.logger.Debug("enqueued analytics event", zap.String("job_id", job.ID), zap.String("event", event))
}
