package job

import (
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Outcome is one job's final state after a batch run.
type Outcome struct {
	Name      string
	State     State
	Err       *TaskError
	Artifacts []string
}

// RunBatch prepares and runs every task in tasks according to
// execution.strategy: "serial" runs them one at a time on the caller's
// goroutine; "threads" fans them out across execution.parallelism
// goroutines via errgroup.Group.SetLimit. "processes" is accepted as a
// configuration value (a declared process-pool strategy) but
// this runtime has no process-isolated execution path, so it is treated
// identically to "threads" - documented here rather than silently
// diverging from the declared strategy.
//
// When fail_fast is true, the first task failure stops further tasks
// from starting (serial: loop breaks; threads: a shared failure flag
// makes tasks that have not started yet skip, while tasks already
// running are allowed to finish). Skipped tasks are reported in the
// created state. When false, every task runs regardless of earlier
// failures.
func RunBatch(tasks []*Task, exec ExecutionConfig) []Outcome {
	switch exec.Strategy {
	case "threads", "processes":
		return runConcurrent(tasks, exec)
	default:
		return runSerial(tasks, exec)
	}
}

func runSerial(tasks []*Task, exec ExecutionConfig) []Outcome {
	outcomes := make([]Outcome, len(tasks))
	for i, t := range tasks {
		outcomes[i] = runOne(t)
		if exec.FailFast && outcomes[i].State == StateFailed {
			for j := i + 1; j < len(tasks); j++ {
				outcomes[j] = Outcome{Name: tasks[j].Name(), State: StateCreated}
			}
			break
		}
	}
	return outcomes
}

func runConcurrent(tasks []*Task, exec ExecutionConfig) []Outcome {
	outcomes := make([]Outcome, len(tasks))
	g := new(errgroup.Group)
	g.SetLimit(maxInt(exec.Parallelism, 1))
	var failed atomic.Bool

	for i, t := range tasks {
		i, t := i, t
		g.Go(func() error {
			if exec.FailFast && failed.Load() {
				outcomes[i] = Outcome{Name: t.Name(), State: StateCreated}
				return nil
			}
			outcomes[i] = runOne(t)
			if outcomes[i].State == StateFailed {
				failed.Store(true)
			}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func runOne(t *Task) Outcome {
	defer func() { _ = t.Close() }()
	if err := t.Prepare(); err != nil {
		return Outcome{Name: t.Name(), State: StateFailed, Err: newTaskError(err)}
	}
	if err := t.Run(); err != nil {
		return Outcome{Name: t.Name(), State: t.State(), Err: t.Err(), Artifacts: t.Artifacts}
	}
	return Outcome{Name: t.Name(), State: t.State(), Artifacts: t.Artifacts}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
