// Package pipeline composes generative-text stages into the two analysis
// topologies: a strictly ordered chain and a per-topic fan-out.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// State is the mutable key/value run-state shared by stages. Sequential
// stages read keys written by their predecessors; parallel stages each write
// an independent key.
type State map[string]interface{}

// Clone returns a shallow copy of the state.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Stage is one unit of agent-driven analysis. Run validates the agent's
// output against the stage schema and writes it into the state under
// OutputKey, or fails.
type Stage interface {
	Name() string
	OutputKey() string
	Run(ctx context.Context, state State) error
}

// StageError reports which stage failed and why.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Sequential runs stages in order against a shared state. The first failure
// aborts the run: a downstream synthesis is meaningless if the extraction
// that feeds it failed.
type Sequential struct {
	name    string
	stages  []Stage
	timeout time.Duration
	logger  *log.Logger
}

// NewSequential builds an ordered pipeline. timeout bounds each stage call.
func NewSequential(name string, timeout time.Duration, logger *log.Logger, stages ...Stage) *Sequential {
	return &Sequential{name: name, stages: stages, timeout: timeout, logger: logger}
}

// Run executes every stage in order. The final state holds each stage's
// output under its key.
func (p *Sequential) Run(ctx context.Context, state State) error {
	for _, st := range p.stages {
		stageCtx, cancel := context.WithTimeout(ctx, p.timeout)
		err := st.Run(stageCtx, state)
		cancel()
		if err != nil {
			return &StageError{Stage: st.Name(), Err: err}
		}
		p.logger.Printf("[%s] stage %s complete", p.name, st.Name())
	}
	return nil
}

// Parallel fans the same input out to independent stage instances and joins
// their outputs. Each stage gets its own state clone so a failing stage can
// never corrupt a sibling's output key; results are merged at the barrier.
type Parallel struct {
	name    string
	stages  []Stage
	timeout time.Duration
	logger  *log.Logger
}

// NewParallel builds a fan-out pipeline over the given stage instances.
func NewParallel(name string, timeout time.Duration, logger *log.Logger, stages ...Stage) *Parallel {
	return &Parallel{name: name, stages: stages, timeout: timeout, logger: logger}
}

// Run executes all stages concurrently and waits for every one to either
// produce output or definitively fail. Partial failure policy: failed stages
// are reported by name and their keys stay absent from the state; the run as
// a whole errors only when every stage failed.
func (p *Parallel) Run(ctx context.Context, state State) ([]string, error) {
	if len(p.stages) == 0 {
		return nil, nil
	}

	type outcome struct {
		stage Stage
		state State
		err   error
	}

	var wg sync.WaitGroup
	outcomes := make([]outcome, len(p.stages))

	for i, st := range p.stages {
		wg.Add(1)
		go func(i int, st Stage) {
			defer wg.Done()
			local := state.Clone()
			stageCtx, cancel := context.WithTimeout(ctx, p.timeout)
			defer cancel()
			err := st.Run(stageCtx, local)
			outcomes[i] = outcome{stage: st, state: local, err: err}
		}(i, st)
	}
	wg.Wait()

	var failed []string
	succeeded := 0
	for _, o := range outcomes {
		if o.err != nil {
			p.logger.Printf("[%s] stage %s failed: %v", p.name, o.stage.Name(), o.err)
			failed = append(failed, o.stage.Name())
			continue
		}
		key := o.stage.OutputKey()
		state[key] = o.state[key]
		succeeded++
	}

	if succeeded == 0 {
		return failed, fmt.Errorf("all %d stages failed", len(p.stages))
	}
	return failed, nil
}
