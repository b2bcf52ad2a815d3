package scheduler

import (
	"container/heap"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/ndrbatch/pkg/types"
)

var errUnmet = types.ErrUnmetDependency

// taskHeap orders ready tasks by descending priority, submission order
// breaking ties.
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h taskHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x interface{}) { *h = append(*h, x.(*Task)) }
func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Scheduler executes submitted tasks on a bounded worker pool, respecting
// declared dependencies within each subgraph and interleaving independent
// subgraphs freely. One Scheduler instance serves the whole batch.
type Scheduler struct {
	log *zap.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	ready   taskHeap
	tasks   []*Task
	pending int // tasks not yet resolved (waiting, ready, or running)
	running int
	seq     int
	closing bool
	fatal   error

	wg sync.WaitGroup
}

// New starts a scheduler with the given worker count.
func New(workers int, log *zap.Logger) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	s := &Scheduler{log: log.Named("scheduler")}
	s.cond = sync.NewCond(&s.mu)
	s.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go s.worker()
	}
	return s
}

// Add registers a task. It becomes ready once all its dependencies have
// resolved; with none it is ready immediately.
func (s *Scheduler) Add(spec Spec) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return nil, types.ErrSchedulerClosed
	}
	t := &Task{
		name:     spec.Name,
		run:      spec.Run,
		targets:  spec.Targets,
		priority: spec.Priority,
		seq:      s.seq,
		deps:     spec.Deps,
		done:     make(chan struct{}),
		s:        s,
	}
	s.seq++
	s.pending++
	s.tasks = append(s.tasks, t)
	for _, d := range spec.Deps {
		if !d.resolved {
			d.children = append(d.children, t)
			t.remaining++
		}
	}
	if t.remaining == 0 {
		heap.Push(&s.ready, t)
		s.cond.Signal()
	}
	return t, nil
}

// Close drains every pending task and stops the workers. It returns an
// error only for the fatal teardown condition: tasks still pending whose
// dependencies can never be met. Individual task failures are reported
// through Join and the log, not through Close.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	s.closing = true
	s.cond.Broadcast()
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatal
}

func (s *Scheduler) worker() {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		for len(s.ready) == 0 {
			if s.closing && s.pending == 0 {
				s.mu.Unlock()
				return
			}
			if s.closing && s.running == 0 && s.pending > 0 {
				// Nothing runs, nothing is ready, yet tasks remain:
				// their dependencies can never complete.
				s.failStranded()
				continue
			}
			s.cond.Wait()
		}
		t := heap.Pop(&s.ready).(*Task)
		s.running++
		s.mu.Unlock()

		s.execute(t)
	}
}

// execute runs one ready task outside the scheduler lock and resolves it.
func (s *Scheduler) execute(t *Task) {
	var err error
	switch {
	case t.depFailure() != nil:
		err = t.depFailure()
		s.log.Warn("task skipped", zap.String("task", t.name), zap.Error(err))
	case t.targetsExist():
		s.log.Debug("task outputs exist, skipping", zap.String("task", t.name))
	default:
		if err = t.run(); err != nil {
			t.removeTargets()
			err = fmt.Errorf("task %s: %w", t.name, err)
			s.log.Warn("task failed", zap.String("task", t.name), zap.Error(err))
		}
	}

	s.mu.Lock()
	s.resolve(t, err)
	s.running--
	if s.closing && s.pending == 0 {
		s.cond.Broadcast()
	}
	s.mu.Unlock()
}

// resolve marks a task finished and releases its dependents. Caller holds
// the lock.
func (s *Scheduler) resolve(t *Task, err error) {
	t.err = err
	t.resolved = true
	s.pending--
	close(t.done)
	for _, c := range t.children {
		c.remaining--
		if c.remaining == 0 {
			heap.Push(&s.ready, c)
			s.cond.Signal()
		}
	}
	t.children = nil
}

// failStranded resolves every unresolved task with an unmet-dependency
// error and records the fatal teardown condition. Caller holds the lock.
func (s *Scheduler) failStranded() {
	s.fatal = fmt.Errorf("%d task(s) pending at teardown with unmet dependencies: %w", s.pending, errUnmet)
	s.log.Error("teardown deadlock", zap.Int("pending", s.pending))
	for _, t := range s.tasks {
		if !t.resolved {
			s.resolve(t, fmt.Errorf("task %s: %w", t.name, errUnmet))
		}
	}
	s.ready = s.ready[:0]
	s.cond.Broadcast()
}
