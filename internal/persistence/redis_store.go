package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a JobStore, MessageStore and ExecutionDetailStore backed by
// Redis. It uses a simple key structure:
//
//	<prefix>job:<id>                  => JSON encoded Job
//	<prefix>idx:jobs                  => SET of all job IDs
//	<prefix>idx:tx:<transaction>      => SET of job IDs of a transaction
//	<prefix>idx:digest:<job>          => SET of job IDs merged into a digest job
//	<prefix>msg:<id>                  => JSON encoded Message
//	<prefix>msgjob:<env>:<job>        => message ID of a job
//	<prefix>details:<env>:<job>       => LIST of JSON encoded ExecutionDetails
//
// The indexes are best-effort; they are always updated on create and
// update, and readers filter on the decoded records.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var (
	_ JobStore             = (*RedisStore)(nil)
	_ MessageStore         = (*RedisStore)(nil)
	_ ExecutionDetailStore = (*RedisStore)(nil)
)

// NewRedisStore creates a RedisStore.
// prefix is optional but recommended (e.g. "herald:").
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "herald:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

// NewRedisPersistence returns a Persistence backed by one RedisStore.
func NewRedisPersistence(client *redis.Client, prefix string) Persistence {
	s := NewRedisStore(client, prefix)
	return Persistence{Jobs: s, Messages: s, Details: s}
}

func (s *RedisStore) keyJob(id string) string {
	return s.prefix + "job:" + id
}

func (s *RedisStore) keyJobs() string {
	return s.prefix + "idx:jobs"
}

func (s *RedisStore) keyTransaction(tx string) string {
	return s.prefix + "idx:tx:" + tx
}

func (s *RedisStore) keyDigest(jobID string) string {
	return s.prefix + "idx:digest:" + jobID
}

func (s *RedisStore) keyMessage(id string) string {
	return s.prefix + "msg:" + id
}

func (s *RedisStore) keyMessageByJob(env, jobID string) string {
	return s.prefix + "msgjob:" + env + ":" + jobID
}

func (s *RedisStore) keyDetails(env, jobID string) string {
	return s.prefix + "details:" + env + ":" + jobID
}

func (s *RedisStore) CreateJob(ctx context.Context, job *Job) error {
	data, err := encodeValue(job)
	if err != nil {
		return err
	}

	ok, err := s.client.SetNX(ctx, s.keyJob(job.ID), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("persistence: job %q already exists", job.ID)
	}

	s.index(ctx, job)
	return nil
}

func (s *RedisStore) UpdateJob(ctx context.Context, job *Job) error {
	data, err := encodeValue(job)
	if err != nil {
		return err
	}

	ok, err := s.client.SetXX(ctx, s.keyJob(job.ID), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrJobNotFound
	}

	s.index(ctx, job)
	return nil
}

// index updates the job indexes; index failures are not fatal.
func (s *RedisStore) index(ctx context.Context, job *Job) {
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, s.keyJobs(), job.ID)
	if job.TransactionID != "" {
		pipe.SAdd(ctx, s.keyTransaction(job.TransactionID), job.ID)
	}
	if job.MergedDigestID != "" {
		pipe.SAdd(ctx, s.keyDigest(job.MergedDigestID), job.ID)
	}
	_, _ = pipe.Exec(ctx)
}

func (s *RedisStore) FindJob(ctx context.Context, environmentID, id string) (*Job, error) {
	data, err := s.client.Get(ctx, s.keyJob(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	job, err := decodeValue[Job](data)
	if err != nil {
		return nil, err
	}
	if job.EnvironmentID != environmentID {
		return nil, ErrJobNotFound
	}
	return &job, nil
}

func (s *RedisStore) FindMergedDigestJobs(ctx context.Context, environmentID, digestJobID string) ([]*Job, error) {
	ids, err := s.client.SMembers(ctx, s.keyDigest(digestJobID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	jobs, err := s.loadJobs(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := jobs[:0]
	for _, j := range jobs {
		if j.EnvironmentID == environmentID && j.MergedDigestID == digestJobID && j.Status == JobStatusMerged {
			out = append(out, j)
		}
	}
	sortJobs(out)
	return out, nil
}

func (s *RedisStore) ListJobs(ctx context.Context, filter JobFilter) ([]*Job, error) {
	key := s.keyJobs()
	if filter.TransactionID != "" {
		key = s.keyTransaction(filter.TransactionID)
	}
	ids, err := s.client.SMembers(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	jobs, err := s.loadJobs(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := jobs[:0]
	for _, j := range jobs {
		if filter.match(j) {
			out = append(out, j)
		}
	}
	sortJobs(out)
	return out, nil
}

func (s *RedisStore) loadJobs(ctx context.Context, ids []string) ([]*Job, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.keyJob(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	jobs := make([]*Job, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, err
		}
		job, err := decodeValue[Job](data)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, &job)
	}
	return jobs, nil
}

func (s *RedisStore) CreateMessage(ctx context.Context, msg *Message) error {
	data, err := encodeValue(msg)
	if err != nil {
		return err
	}

	ok, err := s.client.SetNX(ctx, s.keyMessage(msg.ID), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("persistence: message %q already exists", msg.ID)
	}
	return s.client.Set(ctx, s.keyMessageByJob(msg.EnvironmentID, msg.JobID), msg.ID, 0).Err()
}

func (s *RedisStore) UpdateMessage(ctx context.Context, msg *Message) error {
	data, err := encodeValue(msg)
	if err != nil {
		return err
	}

	ok, err := s.client.SetXX(ctx, s.keyMessage(msg.ID), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrMessageNotFound
	}
	return nil
}

func (s *RedisStore) FindMessageByJob(ctx context.Context, environmentID, jobID string) (*Message, error) {
	id, err := s.client.Get(ctx, s.keyMessageByJob(environmentID, jobID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}

	data, err := s.client.Get(ctx, s.keyMessage(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	msg, err := decodeValue[Message](data)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *RedisStore) CreateExecutionDetail(ctx context.Context, d *ExecutionDetail) error {
	data, err := encodeValue(d)
	if err != nil {
		return err
	}
	return s.client.RPush(ctx, s.keyDetails(d.EnvironmentID, d.JobID), data).Err()
}

func (s *RedisStore) ListExecutionDetails(ctx context.Context, environmentID, jobID string) ([]*ExecutionDetail, error) {
	items, err := s.client.LRange(ctx, s.keyDetails(environmentID, jobID), 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	out := make([]*ExecutionDetail, 0, len(items))
	for _, item := range items {
		d, err := decodeValue[ExecutionDetail]([]byte(item))
		if err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, nil
}
