package archconv

import (
	"context"
	"fmt"
	"sync"

	"github.com/archconv/archconv/internal/engine"
	"go.uber.org/zap"
)

// State is the lifecycle stage of an Operation.
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

func (s State) Done() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// Status is a snapshot of an Operation.
type Status struct {
	State State
	// Ratio is the share of uncompressed bytes copied, when the source size is known.
	Ratio     float64
	Processed int
	Err       error
}

// Operation is a transcode running in the background.
type Operation struct {
	ID      string
	Request Request

	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	status Status
	result engine.Result
}

// Start runs req in its own goroutine and returns immediately. The operation is
// cancelled when ctx is, or through Cancel.
func (e *Engine) Start(ctx context.Context, req Request) *Operation {
	ctx, cancel := context.WithCancel(ctx)

	e.mu.Lock()
	e.nextID++
	op := &Operation{
		ID:      fmt.Sprintf("op-%d", e.nextID),
		Request: req,
		cancel:  cancel,
		done:    make(chan struct{}),
		status:  Status{State: StatePending},
	}
	e.operations[op.ID] = op
	e.mu.Unlock()

	progress := req.Progress
	req.Progress = func(p engine.Progress) {
		op.update(p)
		if progress != nil {
			progress(p)
		}
	}

	e.logger.Debug("starting operation", zap.String("id", op.ID), zap.String("source", req.Source))
	go func() {
		defer cancel()
		op.setState(StateProcessing)
		op.finish(e.Transcode(ctx, req))
	}()
	return op
}

// Operation returns the operation with the given id.
func (e *Engine) Operation(id string) (*Operation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	op, ok := e.operations[id]
	return op, ok
}

// Cancel requests cancellation of the operation with the given id. The operation stops
// before its next entry.
func (e *Engine) Cancel(id string) error {
	op, ok := e.Operation(id)
	if !ok {
		return fmt.Errorf("operation %q not found", id)
	}
	op.Cancel()
	return nil
}

// Forget drops a finished operation from the table.
func (e *Engine) Forget(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if op, ok := e.operations[id]; ok && op.Status().State.Done() {
		delete(e.operations, id)
	}
}

func (o *Operation) Cancel() {
	o.cancel()
}

func (o *Operation) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Done is closed once the operation has finished.
func (o *Operation) Done() <-chan struct{} {
	return o.done
}

// Wait blocks until the operation finishes and returns its result.
func (o *Operation) Wait() engine.Result {
	<-o.done
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.result
}

func (o *Operation) setState(state State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status.State = state
}

func (o *Operation) update(p engine.Progress) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status.Ratio = p.Ratio
	o.status.Processed = p.Processed
}

func (o *Operation) finish(result engine.Result) {
	o.mu.Lock()
	o.result = result
	o.status.Err = result.Err
	switch result.Status {
	case engine.StatusCompleted:
		o.status.State = StateSucceeded
		o.status.Ratio = 1
	case engine.StatusCancelled:
		o.status.State = StateCancelled
	default:
		o.status.State = StateFailed
	}
	o.mu.Unlock()
	close(o.done)
}
