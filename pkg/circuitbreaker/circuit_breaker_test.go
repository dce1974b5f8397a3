package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func TestStateString(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		expected string
	}{
		{name: "Closed state", state: StateClosed, expected: "CLOSED"},
		{name: "Open state", state: StateOpen, expected: "OPEN"},
		{name: "Half-open state", state: StateHalfOpen, expected: "HALF_OPEN"},
		{name: "Unknown state", state: State(999), expected: "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.state.String())
		})
	}
}

func TestExecute_SuccessfulOperation(t *testing.T) {
	cb := NewWithLogger("openai", 3, time.Second*30, quietLogger())
	ctx := context.Background()

	err := cb.Execute(ctx, func(ctx context.Context) error {
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, StateClosed, cb.GetState())

	stats := cb.GetStats()
	assert.Equal(t, uint32(1), stats.Requests)
	assert.Equal(t, uint32(1), stats.Successes)
	assert.Equal(t, uint32(0), stats.Failures)
}

func TestExecute_FailedOperation(t *testing.T) {
	cb := NewWithLogger("openai", 3, time.Second*30, quietLogger())
	ctx := context.Background()
	expectedErr := errors.New("operation failed")

	err := cb.Execute(ctx, func(ctx context.Context) error {
		return expectedErr
	})

	assert.Error(t, err)
	assert.Equal(t, expectedErr, err)
	assert.Equal(t, StateClosed, cb.GetState()) // Still closed after 1 failure
}

func TestCircuitBreakerTripping(t *testing.T) {
	cb := NewWithLogger("anthropic", 2, time.Second*30, quietLogger())
	ctx := context.Background()
	expectedErr := errors.New("operation failed")

	for i := 0; i < 2; i++ {
		err := cb.Execute(ctx, func(ctx context.Context) error {
			return expectedErr
		})
		assert.Equal(t, expectedErr, err)
	}

	assert.Equal(t, StateOpen, cb.GetState())

	// Calls are rejected while open.
	err := cb.Execute(ctx, func(ctx context.Context) error {
		t.Fatal("function should not be called while circuit is open")
		return nil
	})
	assert.Error(t, err)
	assert.True(t, IsCircuitBreakerError(err))
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	cb := NewWithLogger("google", 1, time.Millisecond*10, quietLogger())
	ctx := context.Background()

	err := cb.Execute(ctx, func(ctx context.Context) error {
		return errors.New("fail")
	})
	assert.Error(t, err)
	assert.Equal(t, StateOpen, cb.GetState())

	time.Sleep(time.Millisecond * 20)
	assert.Equal(t, StateHalfOpen, cb.GetState())

	// Three successful probes close the circuit.
	for i := 0; i < 3; i++ {
		err := cb.Execute(ctx, func(ctx context.Context) error {
			return nil
		})
		assert.NoError(t, err)
	}
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewWithLogger("google", 1, time.Millisecond*10, quietLogger())
	ctx := context.Background()

	_ = cb.Execute(ctx, func(ctx context.Context) error {
		return errors.New("fail")
	})
	time.Sleep(time.Millisecond * 20)
	assert.Equal(t, StateHalfOpen, cb.GetState())

	err := cb.Execute(ctx, func(ctx context.Context) error {
		return errors.New("still failing")
	})
	assert.Error(t, err)
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestCircuitBreakerError(t *testing.T) {
	err := &CircuitBreakerError{Name: "mock", State: StateOpen}
	assert.Equal(t, "circuit breaker 'mock' is OPEN", err.Error())
	assert.True(t, IsCircuitBreakerError(err))
	assert.False(t, IsCircuitBreakerError(errors.New("other")))
}
