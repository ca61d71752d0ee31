// Package queue implements a Redis-backed delayed job queue for reminder
// delivery. Jobs are scored by due time in a sorted set with payloads in a
// companion hash; a polling worker claims due jobs and hands them to a
// handler with bounded retries.
//
// Job ids are caller-chosen and deterministic (e.g. "reminder-{id}"), which
// makes enqueue idempotent: re-enqueueing an id that is already queued is a
// no-op until the job is removed or delivered.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	dueSetKey   = "bolikhata:queue:due"
	payloadsKey = "bolikhata:queue:payloads"
)

// Job is one unit of delayed work.
type Job struct {
	// ID is the caller-chosen deterministic identifier.
	ID string `json:"id"`

	// Type routes the job to a handler (e.g. "send-reminder").
	Type string `json:"type"`

	// Payload is the handler-specific body.
	Payload json.RawMessage `json:"payload"`

	// Attempts counts deliveries so far. Managed by the worker.
	Attempts int `json:"attempts"`
}

// Queue schedules and claims delayed jobs. Safe for concurrent use.
type Queue struct {
	client *redis.Client
	now    func() time.Time
}

// New creates a Queue over the given Redis client.
func New(client *redis.Client) *Queue {
	return &Queue{client: client, now: time.Now}
}

// Enqueue schedules job to run after delay. If a job with the same id is
// already queued, the call is a no-op and returns false.
func (q *Queue) Enqueue(ctx context.Context, job Job, delay time.Duration) (bool, error) {
	if job.ID == "" {
		return false, errors.New("queue: job id is required")
	}
	if delay < 0 {
		delay = 0
	}
	body, err := json.Marshal(job)
	if err != nil {
		return false, fmt.Errorf("queue: marshal job %s: %w", job.ID, err)
	}

	due := float64(q.now().Add(delay).UnixMilli())
	added, err := q.client.ZAddNX(ctx, dueSetKey, redis.Z{Score: due, Member: job.ID}).Result()
	if err != nil {
		return false, fmt.Errorf("queue: enqueue %s: %w", job.ID, err)
	}
	if added == 0 {
		return false, nil
	}
	if err := q.client.HSet(ctx, payloadsKey, job.ID, body).Err(); err != nil {
		// Roll the schedule entry back so the set and hash stay in step.
		q.client.ZRem(ctx, dueSetKey, job.ID)
		return false, fmt.Errorf("queue: store payload %s: %w", job.ID, err)
	}
	return true, nil
}

// Remove unschedules a job by id. Returns true if it was still queued.
func (q *Queue) Remove(ctx context.Context, id string) (bool, error) {
	removed, err := q.client.ZRem(ctx, dueSetKey, id).Result()
	if err != nil {
		return false, fmt.Errorf("queue: remove %s: %w", id, err)
	}
	if err := q.client.HDel(ctx, payloadsKey, id).Err(); err != nil {
		return false, fmt.Errorf("queue: remove payload %s: %w", id, err)
	}
	return removed > 0, nil
}

// claimDue pops jobs whose due time has passed, up to limit. Ownership is
// decided by ZRem: whichever caller removes the member first gets the job,
// so concurrent workers never double-claim.
func (q *Queue) claimDue(ctx context.Context, limit int) ([]Job, error) {
	nowMilli := fmt.Sprintf("%d", q.now().UnixMilli())
	ids, err := q.client.ZRangeByScore(ctx, dueSetKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   nowMilli,
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: scan due jobs: %w", err)
	}

	var jobs []Job
	for _, id := range ids {
		removed, err := q.client.ZRem(ctx, dueSetKey, id).Result()
		if err != nil {
			return jobs, fmt.Errorf("queue: claim %s: %w", id, err)
		}
		if removed == 0 {
			continue // another worker got it
		}
		body, err := q.client.HGet(ctx, payloadsKey, id).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return jobs, fmt.Errorf("queue: payload %s: %w", id, err)
		}
		q.client.HDel(ctx, payloadsKey, id)

		var job Job
		if err := json.Unmarshal([]byte(body), &job); err != nil {
			return jobs, fmt.Errorf("queue: decode job %s: %w", id, err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Pending reports whether a job id is still queued.
func (q *Queue) Pending(ctx context.Context, id string) (bool, error) {
	_, err := q.client.ZScore(ctx, dueSetKey, id).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("queue: check %s: %w", id, err)
	}
	return true, nil
}
