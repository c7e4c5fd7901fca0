package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wg-federation/wg-federation/internal/config"
	ferrors "github.com/wg-federation/wg-federation/internal/foundation/errors"
)

func TestFromConfig(t *testing.T) {
	p := FromConfig(config.RetryConfig{})
	assert.Equal(t, DefaultPolicy(), p)

	p = FromConfig(config.RetryConfig{Backoff: config.RetryBackoffFixed, Initial: 5 * time.Second, Max: 2 * time.Second, MaxRetries: 5})
	assert.Equal(t, 2*time.Second, p.Initial, "initial is clamped to max")
	assert.Equal(t, config.RetryBackoffFixed, p.Mode)
	assert.Equal(t, 5, p.MaxRetries)

	assert.Zero(t, FromConfig(config.RetryConfig{MaxRetries: -1}).MaxRetries)
}

func TestDelayModes(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		attempt int
		want    time.Duration
	}{
		{"fixed", Policy{Mode: config.RetryBackoffFixed, Initial: 100 * time.Millisecond, Max: time.Second}, 3, 100 * time.Millisecond},
		{"linear", Policy{Mode: config.RetryBackoffLinear, Initial: 100 * time.Millisecond, Max: 250 * time.Millisecond}, 2, 200 * time.Millisecond},
		{"linear capped", Policy{Mode: config.RetryBackoffLinear, Initial: 100 * time.Millisecond, Max: 250 * time.Millisecond}, 3, 250 * time.Millisecond},
		{"exponential", Policy{Mode: config.RetryBackoffExponential, Initial: 50 * time.Millisecond, Max: 160 * time.Millisecond}, 2, 100 * time.Millisecond},
		{"exponential capped", Policy{Mode: config.RetryBackoffExponential, Initial: 50 * time.Millisecond, Max: 160 * time.Millisecond}, 3, 160 * time.Millisecond},
		{"exponential huge attempt", Policy{Mode: config.RetryBackoffExponential, Initial: time.Second, Max: time.Minute}, 80, time.Minute},
		{"attempt zero", DefaultPolicy(), 0, 0},
		{"negative attempt", DefaultPolicy(), -1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.Delay(tt.attempt))
		})
	}
}

func TestDo(t *testing.T) {
	fast := Policy{Mode: config.RetryBackoffFixed, Initial: time.Millisecond, Max: time.Millisecond, MaxRetries: 2}

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := fast.Do(t.Context(), func() error {
			calls++
			if calls < 3 {
				return errors.New("flaky")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up with the last error", func(t *testing.T) {
		calls := 0
		err := fast.Do(t.Context(), func() error {
			calls++
			return errors.New("down")
		})
		require.EqualError(t, err, "down")
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on permanent errors", func(t *testing.T) {
		calls := 0
		err := fast.Do(t.Context(), func() error {
			calls++
			return ferrors.ConfigError("bad subject").Build()
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("honors context", func(t *testing.T) {
		slow := Policy{Mode: config.RetryBackoffFixed, Initial: time.Hour, Max: time.Hour, MaxRetries: 1}
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		err := slow.Do(ctx, func() error { return errors.New("down") })
		require.ErrorIs(t, err, context.Canceled)
	})
}
