// Package core provides the fundamental primitives of the PTO-ISA A2/A3
// task-graph runtime: the Task record, its core-kind and status tags, and
// the cache-line alignment utilities the handshake and arena layers depend
// on.
//
// Every cross-unit communication in this runtime passes through one of two
// shapes: a Task (read-only after graph build, except for the atomic fanin
// counter) or a HandshakeCell (the doorbell mailbox defined in the runtime
// package). Both are deliberately flat, fixed-capacity structures, with no
// pointers between them, only task_id indices and device addresses computed
// from a base and a stride, so that a graph can be staged in shared memory
// without chasing live Go pointers across execution units.
package core

import (
	"errors"
	"sync/atomic"
)

// TaskArg is an argument descriptor: a base device address, a byte offset,
// and a byte length. The scheduler never dereferences it; only the kernel a
// task binds to interprets the bytes it names.
type TaskArg struct {
	Base uint64
	Off  uint64
	Size uint64
}

// Task is the unit of work. Fields after build are read-only except Fanin
// and Status, which the scheduler mutates during execute, and which
// TaskGraph.ResetForExecute restores before each run.
type Task struct {
	TaskID          int32
	FuncID          int32
	FuncName        [FuncNameLen]byte
	FunctionBinAddr uint64
	NumArgs         int32
	Args            [MaxTaskArgs]TaskArg

	// Fanin is the live count of predecessors not yet Complete. A task is
	// ready iff Fanin == 0 and it has not yet been dispatched.
	Fanin atomic.Int32

	// DepsRemaining mirrors Fanin's initial value for diagnostics and for
	// bit-exact parity with the original wire layout, which carries both a
	// static dependency count and a live counter. It is not the field the
	// scheduler decrements to decide readiness; Fanin is authoritative.
	DepsRemaining atomic.Int32

	NumDependents int32
	Dependents    [MaxDependents]int32

	Status   atomic.Int32 // core.Status, advisory only
	CoreKind CoreKind
}

// ValidateTaskShape checks the bounds NewTask and TaskGraph.AddTask both
// enforce before touching a Task's storage: argument count against
// MaxTaskArgs and name length against FuncNameLen.
func ValidateTaskShape(funcName string, args []TaskArg) error {
	if len(args) > MaxTaskArgs {
		return errors.New("core: too many task args")
	}
	if len(funcName) >= FuncNameLen {
		return errors.New("core: func name exceeds FuncNameLen")
	}
	return nil
}

// NewTask builds a Task for insertion into a TaskGraph. It does not assign
// TaskID; the owning graph does that at append time.
func NewTask(funcID int32, kind CoreKind, funcName string, binAddr uint64, args []TaskArg) (*Task, error) {
	if err := ValidateTaskShape(funcName, args); err != nil {
		return nil, err
	}
	t := &Task{
		FuncID:          funcID,
		FunctionBinAddr: binAddr,
		NumArgs:         int32(len(args)),
		CoreKind:        kind,
	}
	copy(t.FuncName[:], funcName)
	copy(t.Args[:], args)
	t.Status.Store(int32(Pending))
	return t, nil
}

// FuncNameString returns FuncName up to its first NUL byte.
func (t *Task) FuncNameString() string {
	n := 0
	for n < len(t.FuncName) && t.FuncName[n] != 0 {
		n++
	}
	return string(t.FuncName[:n])
}

// AddDependent appends succ to the task's fan-out set. Callers must hold
// exclusive access to the graph being built; this is a build-time-only
// operation, never called once execute has started.
func (t *Task) AddDependent(succ int32) error {
	if t.NumDependents >= MaxDependents {
		return errors.New("core: task fan-out exceeds MaxDependents")
	}
	t.Dependents[t.NumDependents] = succ
	t.NumDependents++
	return nil
}

// IsReady reports whether the task has no outstanding predecessors and has
// not yet been claimed by a scheduler thread.
func (t *Task) IsReady() bool {
	return t.Fanin.Load() == 0 && Status(t.Status.Load()) == Pending
}
