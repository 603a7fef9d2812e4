package middleware_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/weftworks/loom/coordinator"
	"github.com/weftworks/loom/middleware"
	"github.com/weftworks/loom/workflow"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testStep() workflow.Step {
	wf := workflow.New("mw", workflow.Step{Name: "unit"})
	return wf.Steps[0]
}

func TestChainOrdering(t *testing.T) {
	var order []string
	mark := func(name string) middleware.Middleware {
		return func(next coordinator.Executor) coordinator.Executor {
			return coordinator.ExecutorFunc(func(ctx context.Context, step workflow.Step, input []byte) ([]byte, error) {
				order = append(order, name+":before")
				out, err := next.Execute(ctx, step, input)
				order = append(order, name+":after")
				return out, err
			})
		}
	}

	exec := middleware.Chain(
		coordinator.ExecutorFunc(func(context.Context, workflow.Step, []byte) ([]byte, error) {
			order = append(order, "exec")
			return nil, nil
		}),
		mark("outer"), mark("inner"),
	)

	if _, err := exec.Execute(context.Background(), testStep(), nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	want := []string{"outer:before", "inner:before", "exec", "inner:after", "outer:after"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestChainEmptyIsIdentity(t *testing.T) {
	base := coordinator.ExecutorFunc(func(_ context.Context, _ workflow.Step, input []byte) ([]byte, error) {
		return input, nil
	})
	exec := middleware.Chain(base)
	out, err := exec.Execute(context.Background(), testStep(), []byte("through"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if string(out) != "through" {
		t.Fatalf("out = %q, want through", out)
	}
}

func TestRecoverConvertsPanic(t *testing.T) {
	exec := middleware.Chain(
		coordinator.ExecutorFunc(func(context.Context, workflow.Step, []byte) ([]byte, error) {
			panic("executor bug")
		}),
		middleware.Recover(discardLogger()),
	)

	_, err := exec.Execute(context.Background(), testStep(), nil)
	if err == nil {
		t.Fatal("expected error from recovered panic")
	}
	if !strings.Contains(err.Error(), "executor bug") {
		t.Fatalf("err = %v, want panic message", err)
	}
}

func TestLoggingPassesThrough(t *testing.T) {
	wantErr := errors.New("boom")
	exec := middleware.Chain(
		coordinator.ExecutorFunc(func(_ context.Context, _ workflow.Step, input []byte) ([]byte, error) {
			if string(input) == "fail" {
				return nil, wantErr
			}
			return []byte("ok"), nil
		}),
		middleware.Logging(discardLogger()),
	)

	out, err := exec.Execute(context.Background(), testStep(), []byte("go"))
	if err != nil || string(out) != "ok" {
		t.Fatalf("Execute = (%q, %v)", out, err)
	}
	if _, err := exec.Execute(context.Background(), testStep(), []byte("fail")); !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want boom", err)
	}
}

func TestTracingPassesThrough(t *testing.T) {
	exec := middleware.Chain(
		coordinator.ExecutorFunc(func(_ context.Context, _ workflow.Step, input []byte) ([]byte, error) {
			return input, nil
		}),
		middleware.Tracing(),
	)
	out, err := exec.Execute(context.Background(), testStep(), []byte("traced"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if string(out) != "traced" {
		t.Fatalf("out = %q, want traced", out)
	}
}
