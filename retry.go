package herald

import (
	"log/slog"
	"time"

	"github.com/petrijr/herald/pkg/bridge"
)

// RetryBuilder describes how a bridge client retries failed requests.
type RetryBuilder struct {
	maxAttempts int
	waitMin     time.Duration
	waitMax     time.Duration
	timeout     time.Duration
}

// Retry creates a RetryBuilder with the given maxAttempts.
//
// maxAttempts <= 0 is treated as 1 (no retries).
func Retry(maxAttempts int) RetryBuilder {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return RetryBuilder{maxAttempts: maxAttempts}
}

// WithBackoff bounds the exponential wait between attempts.
//
//	Retry(3).WithBackoff(100*time.Millisecond, 2*time.Second)
func (r RetryBuilder) WithBackoff(min, max time.Duration) RetryBuilder {
	r.waitMin = min
	r.waitMax = max
	return r
}

// WithTimeout bounds each attempt.
func (r RetryBuilder) WithTimeout(d time.Duration) RetryBuilder {
	r.timeout = d
	return r
}

// Immediate retries without waiting.
func (r RetryBuilder) Immediate() RetryBuilder {
	r.waitMin = time.Nanosecond
	r.waitMax = time.Nanosecond
	return r
}

// MaxAttempts returns the total number of attempts, including the first.
func (r RetryBuilder) MaxAttempts() int {
	return r.maxAttempts
}

// ClientConfig returns a bridge client configuration for url using this
// retry policy.
func (r RetryBuilder) ClientConfig(url, secretKey string, logger *slog.Logger) bridge.ClientConfig {
	return bridge.ClientConfig{
		URL:          url,
		SecretKey:    secretKey,
		RetryMax:     r.maxAttempts - 1,
		RetryWaitMin: r.waitMin,
		RetryWaitMax: r.waitMax,
		Timeout:      r.timeout,
		Logger:       logger,
	}
}

// NewBridgeClient returns a client for the bridge at url.
func NewBridgeClient(url, secretKey string, retry RetryBuilder) *bridge.Client {
	return bridge.NewClient(retry.ClientConfig(url, secretKey, nil))
}
