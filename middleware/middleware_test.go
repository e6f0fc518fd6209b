package middleware_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"golang.org/x/time/rate"

	pipeline "github.com/DecentralizedGeo/stac-manager-sub002"
	"github.com/DecentralizedGeo/stac-manager-sub002/middleware"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRecord() *pipeline.Record {
	return pipeline.NewRecord("item-1").Set("title", "scene")
}

func TestChain_OrdersOutermostFirst(t *testing.T) {
	var order []string
	mark := func(name string) middleware.Middleware {
		return func(ctx context.Context, _ string, _ *pipeline.Record, next middleware.Handler) error {
			order = append(order, name+":before")
			err := next(ctx)
			order = append(order, name+":after")
			return err
		}
	}

	chain := middleware.Chain(mark("outer"), mark("inner"))
	err := chain(context.Background(), "step", testRecord(), func(context.Context) error {
		order = append(order, "handler")
		return nil
	})
	if err != nil {
		t.Fatalf("chain: %v", err)
	}

	want := []string{"outer:before", "inner:before", "handler", "inner:after", "outer:after"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestChain_EmptyIsPassThrough(t *testing.T) {
	called := false
	err := middleware.Chain()(context.Background(), "step", testRecord(), func(context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatalf("empty chain: called=%v err=%v", called, err)
	}
}

func TestRecover_ConvertsPanicToError(t *testing.T) {
	mw := middleware.Recover(discardLogger())
	err := mw(context.Background(), "filter", testRecord(), func(context.Context) error {
		panic("bad geometry")
	})
	if err == nil {
		t.Fatal("panic should surface as error")
	}
}

func TestRecover_PassesErrorsThrough(t *testing.T) {
	sentinel := errors.New("unit error")
	mw := middleware.Recover(discardLogger())
	err := mw(context.Background(), "filter", testRecord(), func(context.Context) error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want %v", err, sentinel)
	}
}

func TestLogging_PreservesResult(t *testing.T) {
	mw := middleware.Logging(discardLogger())

	if err := mw(context.Background(), "s", testRecord(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("success case: %v", err)
	}
	sentinel := errors.New("bad record")
	if err := mw(context.Background(), "s", testRecord(), func(context.Context) error { return sentinel }); !errors.Is(err, sentinel) {
		t.Fatalf("failure case: %v", err)
	}
}

func TestTimeout_CancelsSlowHandlers(t *testing.T) {
	mw := middleware.Timeout(10 * time.Millisecond)
	err := mw(context.Background(), "s", testRecord(), func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
}

func TestTimeout_ZeroIsPassThrough(t *testing.T) {
	mw := middleware.Timeout(0)
	err := mw(context.Background(), "s", testRecord(), func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); ok {
			return errors.New("unexpected deadline")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("zero timeout: %v", err)
	}
}

func TestRateLimit_RespectsCancelledContext(t *testing.T) {
	// Zero-rate limiter never grants a token, so Wait must return the
	// context error rather than calling the handler.
	limiter := rate.NewLimiter(0, 0)
	mw := middleware.RateLimit(limiter)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := mw(ctx, "s", testRecord(), func(context.Context) error {
		called = true
		return nil
	})
	if err == nil {
		t.Fatal("expected error from cancelled wait")
	}
	if called {
		t.Fatal("handler must not run when the limiter denies the wait")
	}
}

func TestRateLimit_NilLimiterIsPassThrough(t *testing.T) {
	mw := middleware.RateLimit(nil)
	called := false
	if err := mw(context.Background(), "s", testRecord(), func(context.Context) error {
		called = true
		return nil
	}); err != nil || !called {
		t.Fatalf("nil limiter: called=%v err=%v", called, err)
	}
}
