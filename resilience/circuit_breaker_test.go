package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liftplane/liftplane/core"
)

func TestCircuitOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 3,
		RecoveryTimeout:  time.Hour,
	})

	boom := errors.New("backend down")
	for i := 0; i < 3; i++ {
		err := cb.Execute(func() error { return boom })
		assert.ErrorIs(t, err, boom)
	}

	assert.Equal(t, StateOpen, cb.State())

	// open circuit fails fast without invoking fn
	called := false
	err := cb.Execute(func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, core.ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitRecoversThroughHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 1,
		RecoveryTimeout:  10 * time.Millisecond,
	})

	require.Error(t, cb.Execute(func() error { return errors.New("down") }))
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.State())

	// a successful probe closes the circuit
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitReopensOnFailedProbe(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 1,
		RecoveryTimeout:  10 * time.Millisecond,
	})

	require.Error(t, cb.Execute(func() error { return errors.New("down") }))
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.State())

	require.Error(t, cb.Execute(func() error { return errors.New("still down") }))
	assert.Equal(t, StateOpen, cb.State())
}

func TestValidationErrorsDoNotTrip(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 2,
		RecoveryTimeout:  time.Hour,
	})

	badInput := fmt.Errorf("floor out of range: %w", core.ErrValidation)
	for i := 0; i < 10; i++ {
		err := cb.Execute(func() error { return badInput })
		assert.ErrorIs(t, err, core.ErrValidation)
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestContextErrorsDoNotTrip(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 1,
		RecoveryTimeout:  time.Hour,
	})

	_ = cb.Execute(func() error { return context.Canceled })
	_ = cb.Execute(func() error { return context.DeadlineExceeded })
	assert.Equal(t, StateClosed, cb.State())
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 3,
		RecoveryTimeout:  time.Hour,
	})

	down := errors.New("down")
	require.Error(t, cb.Execute(func() error { return down }))
	require.Error(t, cb.Execute(func() error { return down }))
	require.NoError(t, cb.Execute(func() error { return nil }))
	require.Error(t, cb.Execute(func() error { return down }))
	require.Error(t, cb.Execute(func() error { return down }))

	assert.Equal(t, StateClosed, cb.State())
}
