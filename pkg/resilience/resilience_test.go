package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	ferrors "github.com/sarthakbahal/hierarchical-agent-framework/pkg/errors"
)

func TestRetrySuccess(t *testing.T) {
	attempts := 0
	config := DefaultRetryConfig()
	err := config.Do(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	if err != nil {
		t.Errorf("Do: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetryMaxAttemptsExceeded(t *testing.T) {
	attempts := 0
	config := DefaultRetryConfig().WithMaxAttempts(2)
	err := config.Do(context.Background(), func() error {
		attempts++
		return errors.New("still failing")
	})

	if err == nil {
		t.Errorf("Do returned nil after exhausting attempts")
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestRetryNonRecoverable(t *testing.T) {
	attempts := 0
	config := DefaultRetryConfig().WithIsRecoverable(func(err error) bool {
		return false
	})
	err := config.Do(context.Background(), func() error {
		attempts++
		return errors.New("terminal")
	})

	if err == nil {
		t.Errorf("Do returned nil, want error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetryHonorsFrameworkRecoverableFlag(t *testing.T) {
	attempts := 0
	config := DefaultRetryConfig().WithInitialDelay(time.Millisecond)
	err := config.Do(context.Background(), func() error {
		attempts++
		// ARGUMENT_VALIDATION is terminal, no point retrying.
		return ferrors.New(ferrors.CodeArgumentValidation, "missing arg", nil)
	})

	if err == nil {
		t.Errorf("Do returned nil, want error")
	}
	if attempts != 1 {
		t.Errorf("expected non-recoverable error to stop retries, got %d attempts", attempts)
	}

	attempts = 0
	err = config.Do(context.Background(), func() error {
		attempts++
		if attempts < 2 {
			return ferrors.New(ferrors.CodeRateLimit, "throttled", nil).WithRecoverable(true)
		}
		return nil
	})

	if err != nil {
		t.Errorf("expected recovery, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestRetryContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	config := DefaultRetryConfig().WithInitialDelay(80 * time.Millisecond)

	go func() {
		time.Sleep(40 * time.Millisecond)
		cancel()
	}()

	attempts := 0
	err := config.Do(ctx, func() error {
		attempts++
		return errors.New("transient")
	})

	if err == nil {
		t.Errorf("Do returned nil after cancellation")
	}
	if !ferrors.HasCode(err, ferrors.CodeTimeout) {
		t.Errorf("expected TIMEOUT code on cancellation, got %v", err)
	}
	if attempts < 1 {
		t.Errorf("attempts = %d, want at least 1", attempts)
	}
}

func TestRetryWithResult(t *testing.T) {
	attempts := 0
	config := DefaultRetryConfig()
	result, err := DoWithResult(context.Background(), config, func() (string, error) {
		attempts++
		if attempts < 2 {
			return "", errors.New("transient")
		}
		return "success", nil
	})

	if err != nil {
		t.Errorf("Do: %v", err)
	}
	if result != "success" {
		t.Errorf("result = %q, want success", result)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestCalculateBackoffCapsAtMaxDelay(t *testing.T) {
	config := RetryConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   10,
	}

	delay := calculateBackoff(5, config)
	if delay > time.Second {
		t.Errorf("expected delay capped at 1s, got %v", delay)
	}
}

func TestWithTimeoutCompletes(t *testing.T) {
	err := WithTimeout(context.Background(), TimeoutConfig{Duration: time.Second}, func(context.Context) error {
		return nil
	})
	if err != nil {
		t.Errorf("expected success, got %v", err)
	}
}

func TestWithTimeoutExceeded(t *testing.T) {
	err := WithTimeout(context.Background(), TimeoutConfig{Duration: 20 * time.Millisecond}, func(context.Context) error {
		time.Sleep(200 * time.Millisecond)
		return nil
	})

	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if !ferrors.HasCode(err, ferrors.CodeTimeout) {
		t.Errorf("expected TIMEOUT code, got %v", err)
	}
	if !ferrors.IsRecoverable(err) {
		t.Errorf("expected timeout to be recoverable")
	}
}

func TestWithTimeoutPropagatesDeadline(t *testing.T) {
	err := WithTimeout(context.Background(), TimeoutConfig{Duration: time.Second}, func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("expected fn to receive a deadline context")
		}
		return nil
	})
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestWithTimeoutZeroDisablesBoundary(t *testing.T) {
	called := false
	err := WithTimeout(context.Background(), TimeoutConfig{}, func(context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Errorf("expected direct execution with zero timeout")
	}
}

func TestWithTimeoutResult(t *testing.T) {
	value, err := WithTimeoutResult(context.Background(), TimeoutConfig{Duration: time.Second}, func(context.Context) (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != 42 {
		t.Errorf("expected 42, got %d", value)
	}

	_, err = WithTimeoutResult(context.Background(), TimeoutConfig{Duration: 20 * time.Millisecond}, func(context.Context) (int, error) {
		time.Sleep(200 * time.Millisecond)
		return 0, nil
	})
	if !ferrors.HasCode(err, ferrors.CodeTimeout) {
		t.Errorf("expected TIMEOUT code, got %v", err)
	}
}
