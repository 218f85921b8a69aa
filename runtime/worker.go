package runtime

import (
	"fmt"
	"runtime"

	"github.com/ChaoWao/pto-isa/core"
	"github.com/ChaoWao/pto-isa/kernels"
)

// TaskResolver maps a device address published in a HandshakeCell back to
// the Task it names. The runtime package's TaskMemory is the only
// non-test implementation; it exists as an interface so worker tests can
// stub addressing without building a TaskGraph. SchedulerThread uses
// *TaskMemory directly.
type TaskResolver interface {
	Resolve(addr uint64) (*core.Task, error)
}

// Worker is the per-core loop: it owns exactly one HandshakeCell, spins
// through bring-up, then repeatedly polls the doorbell, dispatches the
// bound kernel, and clears TaskStatus. A worker never writes Task, Control,
// CoreKind, or AicpuReady, and never sets TaskStatus to 1; those are the
// scheduler's exclusive writes.
type Worker struct {
	Index    int
	Cell     *HandshakeCell
	Registry *kernels.Registry
	Mem      TaskResolver

	// LastErr records the most recent kernel dispatch error for
	// diagnostics. Run exits (rather than retrying) only when a kernel
	// panics; other dispatch errors are recorded and the loop continues.
	LastErr error
}

// NewWorker builds a Worker bound to one handshake cell.
func NewWorker(index int, cell *HandshakeCell, registry *kernels.Registry, mem TaskResolver) *Worker {
	return &Worker{Index: index, Cell: cell, Registry: registry, Mem: mem}
}

// Run executes the worker loop until the cell's Control field requests
// quit. The design spins rather than parks: Gosched between iterations is
// a cooperative yield, not an OS park, so it keeps that property while
// letting many simulated cores share a limited number of OS threads in
// tests.
//
// An unresolvable address or an unregistered func_id is recorded in LastErr
// but still completes the doorbell, since those are host bookkeeping
// errors, not kernel binary faults, and a scheduler waiting on the cell
// must not hang over one. A kernel that panics is an unrecovered trap: it
// takes its core down, with no protocol-level recovery. Run recovers it,
// records it, and exits without completing the doorbell, so the cell is
// left permanently busy exactly as an unrecovered hardware trap would leave
// it.
func (w *Worker) Run() {
	for !w.Cell.IsReady() {
		runtime.Gosched()
	}
	w.Cell.WorkerAck(w.Index)

	for {
		if w.Cell.ShouldQuit() {
			return
		}
		if addr, busy := w.Cell.Poll(); busy {
			if !w.dispatch(addr) {
				return
			}
			w.Cell.CompleteWork()
		}
		runtime.Gosched()
	}
}

// dispatch resolves and runs the kernel bound to the task at addr. It
// returns false if the kernel trapped, signaling Run to take the core down
// without completing the doorbell.
func (w *Worker) dispatch(addr uint64) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			w.LastErr = Wrap(ErrDeviceLaunch, fmt.Sprintf("kernel trap: %v", r), nil)
			ok = false
		}
	}()

	t, err := w.Mem.Resolve(addr)
	if err != nil {
		w.LastErr = err
		return true
	}
	fn := w.Registry.Lookup(t.FuncID)
	if fn == nil {
		w.LastErr = Wrap(ErrInternal, "no kernel registered for func_id", nil)
		return true
	}
	if err := fn(t.Args[:t.NumArgs]); err != nil {
		w.LastErr = err
	}
	return true
}
