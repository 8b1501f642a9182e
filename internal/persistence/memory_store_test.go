package persistence

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryStore(t *testing.T) {
	runStoreTests(t, NewInMemoryPersistence())
}

func TestInMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	job := sampleJob("job-1", "", time.Now())
	if err := s.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	job.Payload["name"] = "mutated"

	got, err := s.FindJob(ctx, "env-1", "job-1")
	if err != nil {
		t.Fatalf("FindJob: %v", err)
	}
	if got.Payload["name"] != "John" {
		t.Fatalf("store shares maps with caller: %v", got.Payload)
	}

	got.Payload["name"] = "mutated again"
	again, _ := s.FindJob(ctx, "env-1", "job-1")
	if again.Payload["name"] != "John" {
		t.Fatalf("store returned a shared map: %v", again.Payload)
	}
}
