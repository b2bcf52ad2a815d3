// Package scheduler implements the incremental dependency-tracked DAG
// executor driving the batch: each computation step registers as a task
// with declared output artifacts, upstream dependencies, and a priority;
// tasks whose outputs already exist are skipped, independent tasks run in
// parallel on a bounded worker pool, and one task's failure never stops
// sibling subgraphs.
package scheduler

import (
	"fmt"
	"os"
)

// Spec declares one unit of work for Scheduler.Add.
type Spec struct {
	// Name identifies the task in logs and errors.
	Name string
	// Run produces the declared targets. It must write outputs atomically
	// (temp file then rename) so a failure never leaves a partial artifact
	// a later cache check would trust.
	Run func() error
	// Targets are the output artifact paths. If every target already
	// exists when the task is picked up, Run is not invoked.
	Targets []string
	// Deps are upstream tasks that must complete first.
	Deps []*Task
	// Priority orders ready tasks; higher runs earlier. The driver hands
	// earlier-submitted watersheds higher priority so long batches drain
	// predictably.
	Priority int
}

// Task is a scheduled unit of work. A task resolves exactly once: success,
// run failure, or dependency failure.
type Task struct {
	name      string
	run       func() error
	targets   []string
	priority  int
	seq       int
	remaining int
	deps      []*Task
	children  []*Task
	done      chan struct{}
	resolved  bool
	err       error
	s         *Scheduler
}

// Name returns the task's name.
func (t *Task) Name() string { return t.name }

// Join blocks until the task and its transitive dependencies resolve, and
// returns the task's error, if any.
func (t *Task) Join() error {
	<-t.done
	return t.err
}

// Err returns the task's error without blocking; nil until resolved.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// targetsExist reports whether every declared output artifact is present
// on durable storage.
func (t *Task) targetsExist() bool {
	if len(t.targets) == 0 {
		return false
	}
	for _, p := range t.targets {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}

// removeTargets deletes whatever declared outputs a failed run left
// behind, so a re-run never mistakes partial output for a cache hit.
func (t *Task) removeTargets() {
	for _, p := range t.targets {
		os.Remove(p)
	}
}

func (t *Task) depFailure() error {
	for _, d := range t.deps {
		if d.resolved && d.err != nil {
			return fmt.Errorf("task %s: %w: %s", t.name, errUnmet, d.name)
		}
	}
	return nil
}
