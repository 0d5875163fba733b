package retry

import (
	"context"
	"testing"
	"time"

	"github.com/ferro-labs/ai-gateway/internal/engine"
)

func TestRetryRequest_BoundedAttempts(t *testing.T) {
	calls := 0
	handler := func(_ context.Context, attempt int) (*engine.Response, bool, error) {
		calls++
		return engine.NewResponse(503, nil), false, nil
	}
	result := RetryRequest(context.Background(), 2, []int{503}, 0, false, handler)
	if calls != 3 {
		t.Fatalf("calls = %d, want 3 (maxAttempts+1)", calls)
	}
	if result.Response.Status != 503 {
		t.Errorf("status = %d", result.Response.Status)
	}
}

func TestRetryRequest_StopsOnNonRetriableStatus(t *testing.T) {
	calls := 0
	handler := func(_ context.Context, attempt int) (*engine.Response, bool, error) {
		calls++
		if calls == 1 {
			return engine.NewResponse(503, nil), false, nil
		}
		return engine.NewResponse(200, nil), false, nil
	}
	result := RetryRequest(context.Background(), 5, []int{503}, 0, false, handler)
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
	if result.Response.Status != 200 {
		t.Errorf("status = %d", result.Response.Status)
	}
}

func TestRetryRequest_SkipStopsImmediately(t *testing.T) {
	calls := 0
	handler := func(_ context.Context, attempt int) (*engine.Response, bool, error) {
		calls++
		return engine.NewResponse(503, nil), true, nil
	}
	result := RetryRequest(context.Background(), 5, []int{503}, 0, false, handler)
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if !result.Skip {
		t.Error("expected Skip=true")
	}
}

func TestRetryRequest_NeverThrowsOnTransportError(t *testing.T) {
	handler := func(_ context.Context, attempt int) (*engine.Response, bool, error) {
		return nil, false, context.DeadlineExceeded
	}
	result := RetryRequest(context.Background(), 0, []int{503}, 0, false, handler)
	if result.Response == nil {
		t.Fatal("expected synthesized response, got nil")
	}
	if result.Response.Status != 502 {
		t.Errorf("status = %d, want 502", result.Response.Status)
	}
}

func TestRetryRequest_HonorsRetryAfterSeconds(t *testing.T) {
	calls := 0
	var firstCallTime, secondCallTime time.Time
	handler := func(_ context.Context, attempt int) (*engine.Response, bool, error) {
		calls++
		if calls == 1 {
			firstCallTime = time.Now()
			resp := engine.NewResponse(429, nil)
			resp.Headers.Set("Retry-After", "0")
			return resp, false, nil
		}
		secondCallTime = time.Now()
		return engine.NewResponse(200, nil), false, nil
	}
	RetryRequest(context.Background(), 1, []int{429}, time.Second, true, handler)
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
	if secondCallTime.Before(firstCallTime) {
		t.Error("second call should happen after first")
	}
}
