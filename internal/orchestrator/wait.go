package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/petrijr/herald/internal/persistence"
)

// Delay and digest types.
const (
	TypeRegular   = "regular"
	TypeBackoff   = "backoff"
	TypeScheduled = "scheduled"
	TypeTimed     = "timed"
)

var (
	// ErrMissingStepMetadata is returned when a job has no step metadata.
	ErrMissingStepMetadata = errors.New("step metadata not found")
	// ErrDelayInPast is returned when a scheduled delay points at a past date.
	ErrDelayInPast = errors.New("delay date must be a future date")
)

// WaitDurationCalculator computes how long the job after a delay or digest
// step has to wait.
type WaitDurationCalculator struct {
	// Now defaults to time.Now.
	Now func() time.Time
}

func (c WaitDurationCalculator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// CalculateDelay returns the wait for a step. response is the step's bridge
// output and takes precedence over overrides, which take precedence over
// meta. Steps that are neither delays nor digests wait zero.
func (c WaitDurationCalculator) CalculateDelay(meta *persistence.StepMetadata, payload, overrides, response map[string]any) (time.Duration, error) {
	if meta == nil {
		return 0, ErrMissingStepMetadata
	}

	typ := meta.Type
	if t, ok := response["type"].(string); ok && t != "" {
		typ = t
	}

	switch typ {
	case TypeScheduled:
		return c.scheduledDelay(meta, payload, response)

	case TypeRegular, TypeBackoff:
		amount, unit, ok := userRegular(response)
		if o, ok := overrides["delay"].(map[string]any); ok && validOverride(o) {
			if amount == nil {
				amount = o["amount"]
			}
			if unit == "" {
				unit, _ = o["unit"].(string)
			}
		}
		if !ok {
			if amount == nil {
				amount = meta.Amount
			}
			if unit == "" {
				unit = meta.Unit
			}
		}
		n, isNum := toFloat(amount)
		if !isNum {
			return 0, fmt.Errorf("delay amount %v is not a number", amount)
		}
		return toDuration(n, unit)

	case TypeTimed:
		expr := meta.Cron
		if s, ok := response["cron"].(string); ok && s != "" {
			expr = s
		}
		sched, err := cron.ParseStandard(expr)
		if err != nil {
			return 0, fmt.Errorf("parse digest cron %q: %w", expr, err)
		}
		now := c.now()
		return sched.Next(now).Sub(now), nil
	}

	return 0, nil
}

func (c WaitDurationCalculator) scheduledDelay(meta *persistence.StepMetadata, payload, response map[string]any) (time.Duration, error) {
	if date, ok := response["date"].(string); ok && date != "" {
		at, err := parseDate(date)
		if err != nil {
			return 0, err
		}
		d := at.Sub(c.now())
		if d < 0 {
			return 0, ErrDelayInPast
		}
		return d, nil
	}

	path := meta.DelayPath
	if p, ok := response["delayPath"].(string); ok && p != "" {
		path = p
	}
	if path == "" {
		return 0, errors.New("delay path not found")
	}
	raw, ok := payload[path].(string)
	if !ok {
		return 0, fmt.Errorf("delay date at path %s is missing", path)
	}
	at, err := parseDate(raw)
	if err != nil {
		return 0, err
	}
	d := at.Sub(c.now())
	if d < 0 {
		return 0, fmt.Errorf("delay date at path %s: %w", path, ErrDelayInPast)
	}
	return d, nil
}

// userRegular extracts a regular delay the step returned itself. All three
// of type, amount and unit must be present.
func userRegular(response map[string]any) (any, string, bool) {
	if response["type"] != TypeRegular {
		return nil, "", false
	}
	unit, _ := response["unit"].(string)
	amount, ok := toFloat(response["amount"])
	if unit == "" || !ok || amount == 0 {
		return nil, "", false
	}
	return amount, unit, true
}

func validOverride(o map[string]any) bool {
	if _, ok := toFloat(o["amount"]); !ok {
		return false
	}
	unit, _ := o["unit"].(string)
	_, ok := unitDurations[unit]
	return ok
}

var unitDurations = map[string]time.Duration{
	"seconds": time.Second,
	"minutes": time.Minute,
	"hours":   time.Hour,
	"days":    24 * time.Hour,
	"weeks":   7 * 24 * time.Hour,
	"months":  30 * 24 * time.Hour,
}

func toDuration(amount float64, unit string) (time.Duration, error) {
	d, ok := unitDurations[unit]
	if !ok {
		return 0, fmt.Errorf("unknown delay unit %q", unit)
	}
	return time.Duration(amount * float64(d)), nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid delay date %q", s)
}
