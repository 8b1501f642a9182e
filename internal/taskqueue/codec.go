package taskqueue

import (
	"encoding/json"
	"time"
)

// EncodeTask JSON-encodes a Task.
func EncodeTask(t Task) ([]byte, error) {
	return json.Marshal(t)
}

// DecodeTask JSON-decodes a Task.
func DecodeTask(data []byte) (*Task, error) {
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// stamp fills EnqueuedAt when the caller left it empty.
func stamp(t Task, now time.Time) Task {
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = now
	}
	return t
}
