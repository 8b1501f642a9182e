package persistence

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// InMemoryStore is a simple, goroutine-safe implementation of JobStore,
// MessageStore and ExecutionDetailStore backed by maps. Values are copied
// on the way in and out.
type InMemoryStore struct {
	mu       sync.RWMutex
	jobs     map[string]*Job
	messages map[string]*Message
	// messageByJob indexes messages by environment and job.
	messageByJob map[string]string
	details      []*ExecutionDetail
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		jobs:         make(map[string]*Job),
		messages:     make(map[string]*Message),
		messageByJob: make(map[string]string),
	}
}

// Ensure InMemoryStore implements the interfaces.
var _ JobStore = (*InMemoryStore)(nil)

var _ MessageStore = (*InMemoryStore)(nil)

var _ ExecutionDetailStore = (*InMemoryStore)(nil)

func (s *InMemoryStore) CreateJob(_ context.Context, job *Job) error {
	cp, err := clone(job)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("persistence: job %q already exists", job.ID)
	}
	s.jobs[job.ID] = cp
	return nil
}

func (s *InMemoryStore) UpdateJob(_ context.Context, job *Job) error {
	cp, err := clone(job)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; !ok {
		return ErrJobNotFound
	}
	s.jobs[job.ID] = cp
	return nil
}

func (s *InMemoryStore) FindJob(_ context.Context, environmentID, id string) (*Job, error) {
	s.mu.RLock()
	job, ok := s.jobs[id]
	s.mu.RUnlock()

	if !ok || job.EnvironmentID != environmentID {
		return nil, ErrJobNotFound
	}
	return clone(job)
}

func (s *InMemoryStore) FindMergedDigestJobs(_ context.Context, environmentID, digestJobID string) ([]*Job, error) {
	s.mu.RLock()
	var out []*Job
	for _, j := range s.jobs {
		if j.EnvironmentID == environmentID && j.MergedDigestID == digestJobID &&
			j.Status == JobStatusMerged {
			out = append(out, j)
		}
	}
	s.mu.RUnlock()

	return cloneJobs(out)
}

func (s *InMemoryStore) ListJobs(_ context.Context, filter JobFilter) ([]*Job, error) {
	s.mu.RLock()
	var out []*Job
	for _, j := range s.jobs {
		if filter.match(j) {
			out = append(out, j)
		}
	}
	s.mu.RUnlock()

	return cloneJobs(out)
}

func cloneJobs(jobs []*Job) ([]*Job, error) {
	sortJobs(jobs)
	out := make([]*Job, 0, len(jobs))
	for _, j := range jobs {
		cp, err := clone(j)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

// sortJobs orders jobs oldest first, by id on ties.
func sortJobs(jobs []*Job) {
	sort.SliceStable(jobs, func(i, k int) bool {
		if jobs[i].CreatedAt.Equal(jobs[k].CreatedAt) {
			return jobs[i].ID < jobs[k].ID
		}
		return jobs[i].CreatedAt.Before(jobs[k].CreatedAt)
	})
}

func messageKey(environmentID, jobID string) string {
	return environmentID + "/" + jobID
}

func (s *InMemoryStore) CreateMessage(_ context.Context, msg *Message) error {
	cp, err := clone(msg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[msg.ID]; ok {
		return fmt.Errorf("persistence: message %q already exists", msg.ID)
	}
	s.messages[msg.ID] = cp
	s.messageByJob[messageKey(msg.EnvironmentID, msg.JobID)] = msg.ID
	return nil
}

func (s *InMemoryStore) UpdateMessage(_ context.Context, msg *Message) error {
	cp, err := clone(msg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[msg.ID]; !ok {
		return ErrMessageNotFound
	}
	s.messages[msg.ID] = cp
	return nil
}

func (s *InMemoryStore) FindMessageByJob(_ context.Context, environmentID, jobID string) (*Message, error) {
	s.mu.RLock()
	id, ok := s.messageByJob[messageKey(environmentID, jobID)]
	var msg *Message
	if ok {
		msg = s.messages[id]
	}
	s.mu.RUnlock()

	if msg == nil {
		return nil, ErrMessageNotFound
	}
	return clone(msg)
}

func (s *InMemoryStore) CreateExecutionDetail(_ context.Context, d *ExecutionDetail) error {
	cp, err := clone(d)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.details = append(s.details, cp)
	return nil
}

func (s *InMemoryStore) ListExecutionDetails(_ context.Context, environmentID, jobID string) ([]*ExecutionDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*ExecutionDetail
	for _, d := range s.details {
		if d.EnvironmentID != environmentID || d.JobID != jobID {
			continue
		}
		cp, err := clone(d)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}
