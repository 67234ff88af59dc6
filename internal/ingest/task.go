package ingest

import (
	"context"

	"github.com/spigell/commandjobs/internal/source"
)

// Task is a run started in the background.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}

	result Result
	err    error
}

// Start runs src on its own goroutine. Cancelling the task interrupts the
// run the same way cancelling ctx does.
func (p *Pipeline) Start(ctx context.Context, src source.Source) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(t.done)
		defer cancel()
		t.result, t.err = p.Run(ctx, src)
	}()

	return t
}

// Done is closed once the run has finished.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

func (t *Task) Cancel() {
	t.cancel()
}

// Wait blocks until the run finishes and returns its outcome.
func (t *Task) Wait() (Result, error) {
	<-t.done
	return t.result, t.err
}
