package client

import (
	"context"

	"github.com/NebulousLabs/threadgroup"
)

// Task is the structured-cancellation handle every long-running client
// operation (an upload, a download, a publish) returns instead of taking a
// progress callback. Cancel aborts the operation's awaits and releases its
// partial work; Wait blocks for completion and returns its error.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Cancel requests the task stop. It is safe to call more than once and
// safe to call after the task has already finished.
func (t *Task) Cancel() {
	t.cancel()
}

// Wait blocks until the task's function returns, then returns its error.
func (t *Task) Wait() error {
	<-t.done
	return t.err
}

// Done returns a channel closed when the task has finished, for callers
// that want to select on it alongside other events instead of blocking in
// Wait.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// run starts fn in its own goroutine under tg, giving fn a context that is
// cancelled either by the returned Task's Cancel method or by tg.Stop --
// whichever comes first -- and returns a Task handle for it. It is the
// client's only way of turning "start some work" into something a caller
// can cancel or wait on; no operation in this module takes or calls a
// progress callback.
func run(tg *threadgroup.ThreadGroup, fn func(ctx context.Context) error) (*Task, error) {
	if err := tg.Add(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Task{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer tg.Done()
		defer close(t.done)

		stopped := make(chan struct{})
		go func() {
			select {
			case <-tg.StopChan():
				cancel()
			case <-stopped:
			}
		}()
		defer close(stopped)

		t.err = fn(ctx)
	}()

	return t, nil
}
