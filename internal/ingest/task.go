package ingest

import "context"

// Task tracks a phase-two graph rebuild. Waiting is optional: callers that
// only need retrieval can drop the task, the rebuild finishes regardless.
type Task struct {
	done chan struct{}
	err  error
}

func newTask() *Task {
	return &Task{done: make(chan struct{})}
}

// finish records the outcome and releases waiters. Called exactly once.
func (t *Task) finish(err error) {
	t.err = err
	close(t.done)
}

// Wait blocks until the graph rebuild finishes or ctx is done, returning
// the rebuild error in the former case and the context error in the
// latter.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done reports completion without blocking.
func (t *Task) Done() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}
