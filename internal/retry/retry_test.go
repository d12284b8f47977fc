package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/54b3r/ragbot-go/internal/apperr"
)

// fastPolicy keeps test delays in the low milliseconds.
func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func Test_Do_SucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()
	calls := 0
	err := Do(context.Background(), fastPolicy(3), "flaky", func(context.Context) error {
		calls++
		if calls < 3 {
			return apperr.Dependency("flaky", errors.New("connection reset"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("want 3 calls, got %d", calls)
	}
}

func Test_Do_StopsAtMaxAttempts(t *testing.T) {
	t.Parallel()
	calls := 0
	boom := errors.New("boom")
	err := Do(context.Background(), fastPolicy(2), "down", func(context.Context) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
	if calls != 2 {
		t.Errorf("want 2 calls, got %d", calls)
	}
}

func Test_Do_ValidationIsPermanent(t *testing.T) {
	t.Parallel()
	calls := 0
	err := Do(context.Background(), fastPolicy(5), "bad input", func(context.Context) error {
		calls++
		return apperr.Validation("empty text")
	})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("want validation error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("validation errors must not be retried, got %d calls", calls)
	}
}

func Test_Do_NonePolicySingleAttempt(t *testing.T) {
	t.Parallel()
	calls := 0
	_ = Do(context.Background(), None(), "once", func(context.Context) error {
		calls++
		return errors.New("fail")
	})
	if calls != 1 {
		t.Errorf("want 1 call, got %d", calls)
	}
}

func Test_Do_CancelledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Policy{MaxAttempts: 10, InitialInterval: 50 * time.Millisecond}, "slow", func(context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	})
	if err == nil {
		t.Fatal("expected an error after cancellation")
	}
	if calls != 1 {
		t.Errorf("want 1 call before cancellation stopped the loop, got %d", calls)
	}
}

func Test_Value_ReturnsResult(t *testing.T) {
	t.Parallel()
	got, err := Value(context.Background(), fastPolicy(2), "value", func(context.Context) (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Errorf("want 42, got %d", got)
	}
}

func TestPolicyFromEnv(t *testing.T) {
	tests := []struct {
		name string
		env  [3]string
		want Policy
	}{
		{"defaults", [3]string{"", "", ""}, DefaultPolicy()},
		{"overrides", [3]string{"5", "50ms", "1s"}, Policy{MaxAttempts: 5, InitialInterval: 50 * time.Millisecond, MaxInterval: time.Second}},
		{"invalid keeps defaults", [3]string{"zero", "-1s", "soon"}, DefaultPolicy()},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("RETRY_MAX_ATTEMPTS", tc.env[0])
			t.Setenv("RETRY_INITIAL_INTERVAL", tc.env[1])
			t.Setenv("RETRY_MAX_INTERVAL", tc.env[2])
			if got := PolicyFromEnv(); got != tc.want {
				t.Errorf("PolicyFromEnv() = %+v, want %+v", got, tc.want)
			}
		})
	}
}
