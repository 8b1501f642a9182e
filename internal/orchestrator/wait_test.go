package orchestrator

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/herald/internal/persistence"
)

func fixedClock() WaitDurationCalculator {
	return WaitDurationCalculator{Now: func() time.Time { return baseTime }}
}

func TestCalculateDelay_MissingMetadata(t *testing.T) {
	_, err := fixedClock().CalculateDelay(nil, nil, nil, nil)
	assert.True(t, errors.Is(err, ErrMissingStepMetadata))
}

func TestCalculateDelay_Regular(t *testing.T) {
	c := fixedClock()
	meta := &persistence.StepMetadata{Type: TypeRegular, Amount: 2, Unit: "minutes"}

	d, err := c.CalculateDelay(meta, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, d)

	d, err = c.CalculateDelay(meta, nil, nil, map[string]any{"type": "regular", "amount": float64(3), "unit": "hours"})
	require.NoError(t, err)
	assert.Equal(t, 3*time.Hour, d, "bridge output wins over metadata")

	overrides := map[string]any{"delay": map[string]any{"amount": float64(1), "unit": "days"}}
	d, err = c.CalculateDelay(meta, nil, overrides, nil)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, d, "valid override wins over metadata")

	d, err = c.CalculateDelay(meta, nil, overrides, map[string]any{"type": "regular", "amount": 5, "unit": "seconds"})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, d, "bridge output wins over override")

	bad := map[string]any{"delay": map[string]any{"amount": "soon", "unit": "days"}}
	d, err = c.CalculateDelay(meta, nil, bad, nil)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, d, "invalid override is ignored")

	d, err = c.CalculateDelay(&persistence.StepMetadata{Type: TypeRegular, Amount: 1, Unit: "weeks"}, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, d)

	_, err = c.CalculateDelay(&persistence.StepMetadata{Type: TypeRegular, Amount: 1, Unit: "fortnights"}, nil, nil, nil)
	assert.Error(t, err)
}

func TestCalculateDelay_Scheduled(t *testing.T) {
	c := fixedClock()
	meta := &persistence.StepMetadata{Type: TypeScheduled, DelayPath: "sendAt"}

	d, err := c.CalculateDelay(meta, map[string]any{"sendAt": "2024-06-26T13:00:00Z"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, d)

	d, err = c.CalculateDelay(meta, nil, nil, map[string]any{"type": "scheduled", "date": "2024-06-26T12:30:00Z"})
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, d)

	_, err = c.CalculateDelay(meta, map[string]any{"sendAt": "2024-06-26T11:00:00Z"}, nil, nil)
	assert.True(t, errors.Is(err, ErrDelayInPast))

	_, err = c.CalculateDelay(meta, map[string]any{}, nil, nil)
	assert.Error(t, err, "missing date at path")

	_, err = c.CalculateDelay(&persistence.StepMetadata{Type: TypeScheduled}, map[string]any{}, nil, nil)
	assert.Error(t, err, "missing delay path")
}

func TestCalculateDelay_TimedDigest(t *testing.T) {
	c := fixedClock()
	meta := &persistence.StepMetadata{Type: TypeTimed, Cron: "0 18 * * *"}

	d, err := c.CalculateDelay(meta, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 6*time.Hour, d)

	d, err = c.CalculateDelay(meta, nil, nil, map[string]any{"type": "timed", "cron": "30 12 * * *"})
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, d)

	_, err = c.CalculateDelay(&persistence.StepMetadata{Type: TypeTimed, Cron: "not a cron"}, nil, nil, nil)
	assert.Error(t, err)
}

func TestCalculateDelay_OtherStepsDoNotWait(t *testing.T) {
	d, err := fixedClock().CalculateDelay(&persistence.StepMetadata{}, nil, nil, map[string]any{"subject": "x"})
	require.NoError(t, err)
	assert.Zero(t, d)
}
