package backoff

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelayWithRand(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		attempt int
		random  float64
		want    time.Duration
	}{
		{
			name:    "first retry uses initial delay",
			policy:  Policy{Initial: time.Second, Factor: 2},
			attempt: 0,
			want:    time.Second,
		},
		{
			name:    "second retry doubles",
			policy:  Policy{Initial: time.Second, Factor: 2},
			attempt: 1,
			want:    2 * time.Second,
		},
		{
			name:    "third retry quadruples",
			policy:  Policy{Initial: time.Second, Factor: 2},
			attempt: 2,
			want:    4 * time.Second,
		},
		{
			name:    "max caps the delay",
			policy:  Policy{Initial: time.Second, Factor: 2, Max: 3 * time.Second},
			attempt: 5,
			want:    3 * time.Second,
		},
		{
			name:    "jitter adds randomized fraction",
			policy:  Policy{Initial: time.Second, Factor: 2, Jitter: 0.5},
			attempt: 0,
			random:  1.0,
			want:    1500 * time.Millisecond,
		},
		{
			name:    "negative attempt clamps to zero",
			policy:  Policy{Initial: time.Second, Factor: 2},
			attempt: -3,
			want:    time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DelayWithRand(tt.policy, tt.attempt, tt.random)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, time.Second, Delay(p, 0))
	assert.Equal(t, 2*time.Second, Delay(p, 1))
}

func TestSleepWithContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := SleepWithContext(ctx, time.Minute)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSleepWithContext_ZeroDuration(t *testing.T) {
	require.NoError(t, SleepWithContext(context.Background(), 0))
}
