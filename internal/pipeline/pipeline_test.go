package pipeline

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"
)

type fakeStage struct {
	name string
	key  string
	run  func(ctx context.Context, state State) error
}

func (s *fakeStage) Name() string      { return s.name }
func (s *fakeStage) OutputKey() string { return s.key }
func (s *fakeStage) Run(ctx context.Context, state State) error {
	return s.run(ctx, state)
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestSequentialRunsInOrder(t *testing.T) {
	var order []string
	stage := func(name, key string) Stage {
		return &fakeStage{name: name, key: key, run: func(ctx context.Context, state State) error {
			order = append(order, name)
			state[key] = name
			return nil
		}}
	}

	p := NewSequential("chain", time.Second, testLogger(),
		stage("first", "a"), stage("second", "b"), stage("third", "c"))
	state := State{}
	if err := p.Run(context.Background(), state); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(order) != 3 || order[0] != "first" || order[1] != "second" || order[2] != "third" {
		t.Fatalf("unexpected order %v", order)
	}
	if state["a"] != "first" || state["b"] != "second" || state["c"] != "third" {
		t.Fatalf("stage outputs missing from state: %v", state)
	}
}

func TestSequentialFailFast(t *testing.T) {
	boom := errors.New("boom")
	thirdRan := false

	p := NewSequential("chain", time.Second, testLogger(),
		&fakeStage{name: "first", key: "a", run: func(ctx context.Context, state State) error { return nil }},
		&fakeStage{name: "second", key: "b", run: func(ctx context.Context, state State) error { return boom }},
		&fakeStage{name: "third", key: "c", run: func(ctx context.Context, state State) error { thirdRan = true; return nil }},
	)

	err := p.Run(context.Background(), State{})
	if err == nil {
		t.Fatalf("expected error")
	}
	var se *StageError
	if !errors.As(err, &se) || se.Stage != "second" {
		t.Fatalf("expected StageError for second, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
	if thirdRan {
		t.Fatalf("downstream stage must not run after a failure")
	}
}

func TestSequentialStageTimeout(t *testing.T) {
	p := NewSequential("chain", 20*time.Millisecond, testLogger(),
		&fakeStage{name: "slow", key: "a", run: func(ctx context.Context, state State) error {
			<-ctx.Done()
			return ctx.Err()
		}},
	)
	err := p.Run(context.Background(), State{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestParallelMergesIndependentOutputs(t *testing.T) {
	stage := func(name, key string) Stage {
		return &fakeStage{name: name, key: key, run: func(ctx context.Context, state State) error {
			state[key] = name
			return nil
		}}
	}
	p := NewParallel("fan", time.Second, testLogger(),
		stage("one", "k1"), stage("two", "k2"), stage("three", "k3"))

	state := State{"shared": "input"}
	failed, err := p.Run(context.Background(), state)
	if err != nil || len(failed) != 0 {
		t.Fatalf("unexpected failure: %v %v", failed, err)
	}
	for key, want := range map[string]string{"k1": "one", "k2": "two", "k3": "three"} {
		if state[key] != want {
			t.Fatalf("missing merged output %s", key)
		}
	}
}

func TestParallelPartialFailure(t *testing.T) {
	ok := func(name, key string) Stage {
		return &fakeStage{name: name, key: key, run: func(ctx context.Context, state State) error {
			state[key] = name
			return nil
		}}
	}
	bad := &fakeStage{name: "broken", key: "kb", run: func(ctx context.Context, state State) error {
		state["kb"] = "partial garbage"
		return errors.New("boom")
	}}

	state := State{}
	p := NewParallel("fan", time.Second, testLogger(), ok("one", "k1"), bad, ok("two", "k2"))
	failed, err := p.Run(context.Background(), state)
	if err != nil {
		t.Fatalf("partial failure must not fail the run: %v", err)
	}
	if len(failed) != 1 || failed[0] != "broken" {
		t.Fatalf("expected broken reported, got %v", failed)
	}
	if _, ok := state["kb"]; ok {
		t.Fatalf("failed stage output must not leak into shared state")
	}
	if state["k1"] != "one" || state["k2"] != "two" {
		t.Fatalf("surviving outputs missing: %v", state)
	}
}

func TestParallelAllFailed(t *testing.T) {
	bad := func(name string) Stage {
		return &fakeStage{name: name, key: name, run: func(ctx context.Context, state State) error {
			return errors.New("boom")
		}}
	}
	p := NewParallel("fan", time.Second, testLogger(), bad("a"), bad("b"))
	failed, err := p.Run(context.Background(), State{})
	if err == nil {
		t.Fatalf("expected error when every stage fails")
	}
	if len(failed) != 2 {
		t.Fatalf("expected both stages reported, got %v", failed)
	}
}

func TestParallelCloneIsolatesSiblings(t *testing.T) {
	mutator := &fakeStage{name: "mutator", key: "km", run: func(ctx context.Context, state State) error {
		state["shared"] = "clobbered"
		state["km"] = "done"
		return nil
	}}
	var sawShared interface{}
	reader := &fakeStage{name: "reader", key: "kr", run: func(ctx context.Context, state State) error {
		time.Sleep(10 * time.Millisecond)
		sawShared = state["shared"]
		state["kr"] = "done"
		return nil
	}}

	state := State{"shared": "input"}
	if _, err := NewParallel("fan", time.Second, testLogger(), mutator, reader).Run(context.Background(), state); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if sawShared != "input" {
		t.Fatalf("sibling observed a mutation: %v", sawShared)
	}
	if state["shared"] != "input" {
		t.Fatalf("shared input clobbered: %v", state["shared"])
	}
}
