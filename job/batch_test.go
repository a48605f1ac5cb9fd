package job

import (
	"testing"
)

func TestRunBatchSerialRunsAllTasks(t *testing.T) {
	registerTestPlugins(t, 1, false)
	tasks := []*Task{
		NewTask(testJobSpec(), testCacheConfigs(), TransformConfigs{IRVersion: 1}, nil),
		NewTask(testJobSpec(), testCacheConfigs(), TransformConfigs{IRVersion: 1}, nil),
	}
	outcomes := RunBatch(tasks, ExecutionConfig{Parallelism: 1, Strategy: "serial"})
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	for _, o := range outcomes {
		if o.State != StateFinished {
			t.Fatalf("expected finished, got %s (err=%+v)", o.State, o.Err)
		}
	}
}

func TestRunBatchThreadsRunsAllTasks(t *testing.T) {
	registerTestPlugins(t, 1, false)
	tasks := make([]*Task, 5)
	for i := range tasks {
		tasks[i] = NewTask(testJobSpec(), testCacheConfigs(), TransformConfigs{IRVersion: 1}, nil)
	}
	outcomes := RunBatch(tasks, ExecutionConfig{Parallelism: 3, Strategy: "threads"})
	if len(outcomes) != 5 {
		t.Fatalf("expected 5 outcomes, got %d", len(outcomes))
	}
	for _, o := range outcomes {
		if o.State != StateFinished {
			t.Fatalf("expected finished, got %s (err=%+v)", o.State, o.Err)
		}
	}
}

func TestRunBatchSerialFailFastSkipsRemaining(t *testing.T) {
	registerTestPlugins(t, 0, true)
	tasks := []*Task{
		NewTask(testJobSpec(), testCacheConfigs(), TransformConfigs{IRVersion: 1}, nil),
		NewTask(testJobSpec(), testCacheConfigs(), TransformConfigs{IRVersion: 1}, nil),
		NewTask(testJobSpec(), testCacheConfigs(), TransformConfigs{IRVersion: 1}, nil),
	}
	outcomes := RunBatch(tasks, ExecutionConfig{Parallelism: 1, Strategy: "serial", FailFast: true})
	if outcomes[0].State != StateFailed {
		t.Fatalf("expected first task to fail, got %s", outcomes[0].State)
	}
	if outcomes[1].State != StateCreated || outcomes[2].State != StateCreated {
		t.Fatalf("expected remaining tasks skipped after fail-fast, got %s, %s", outcomes[1].State, outcomes[2].State)
	}
}

func TestRunBatchWithoutFailFastRunsEveryTask(t *testing.T) {
	registerTestPlugins(t, 0, true)
	tasks := []*Task{
		NewTask(testJobSpec(), testCacheConfigs(), TransformConfigs{IRVersion: 1}, nil),
		NewTask(testJobSpec(), testCacheConfigs(), TransformConfigs{IRVersion: 1}, nil),
	}
	outcomes := RunBatch(tasks, ExecutionConfig{Parallelism: 1, Strategy: "serial", FailFast: false})
	for _, o := range outcomes {
		if o.State != StateFailed {
			t.Fatalf("expected every task to have actually run and failed, got %s", o.State)
		}
	}
}
