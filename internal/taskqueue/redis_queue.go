package taskqueue

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue implements the Queue interface using Redis.
//
// It uses a single sorted set with key:
//
//	<prefix>tasks
//
// Members are JSON encoded Tasks scored by their due time in unix
// milliseconds. A task is claimed by whoever removes it with ZREM first.
type RedisQueue struct {
	client       *redis.Client
	key          string
	pollInterval time.Duration
}

// NewRedisQueue constructs a Redis-backed Queue.
// prefix is optional but recommended (e.g. "herald:").
func NewRedisQueue(client *redis.Client, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = "herald:"
	}
	return &RedisQueue{
		client:       client,
		key:          prefix + "tasks",
		pollInterval: defaultPollInterval,
	}
}

// Ensure RedisQueue implements Queue.
var _ Queue = (*RedisQueue)(nil)

// Enqueue adds a task to the sorted set.
func (q *RedisQueue) Enqueue(ctx context.Context, t Task) error {
	t = stamp(t, time.Now())
	data, err := EncodeTask(t)
	if err != nil {
		return err
	}
	return q.client.ZAdd(ctx, q.key, redis.Z{
		Score:  float64(t.due().UnixMilli()),
		Member: data,
	}).Err()
}

// Dequeue polls for the earliest due task until one is claimed or ctx is
// cancelled.
func (q *RedisQueue) Dequeue(ctx context.Context) (*Task, error) {
	tmr := newStoppedTimer()
	defer tmr.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		members, err := q.client.ZRangeByScore(ctx, q.key, &redis.ZRangeBy{
			Min:   "-inf",
			Max:   strconv.FormatInt(time.Now().UnixMilli(), 10),
			Count: 1,
		}).Result()
		if err != nil {
			return nil, err
		}
		if len(members) == 0 {
			if err := waitPoll(ctx, tmr, q.pollInterval); err != nil {
				return nil, err
			}
			continue
		}

		removed, err := q.client.ZRem(ctx, q.key, members[0]).Result()
		if err != nil {
			return nil, err
		}
		if removed == 0 {
			// Another consumer claimed it first.
			continue
		}
		return DecodeTask([]byte(members[0]))
	}
}

// Len returns the number of tasks queued (ZCARD).
func (q *RedisQueue) Len() int {
	n, err := q.client.ZCard(context.Background(), q.key).Result()
	if err != nil {
		slog.Default().Warn("redis_queue_len_failed", slog.Any("error", err))
		return 0
	}
	return int(n)
}
