// Package runtime implements the device-side half of the A2/A3 task-graph
// engine: the handshake cell doorbell protocol (this file), the per-core
// worker loop, the per-thread scheduler, and the host-side launch
// orchestrator that ties them together.
package runtime

import (
	"sync/atomic"

	"github.com/ChaoWao/pto-isa/core"
)

// HandshakeCell is the single point of synchronization between one
// scheduler thread and one worker core: a cache-line-aligned mailbox.
// Go's memory model does not require explicit cache-line invalidation on
// coherent hardware, but the field ordering and the acquire/release
// discipline below mirror the original protocol bit-for-bit: every read
// that matters is an atomic load, every write that publishes state to the
// other side is an atomic store, and the "doorbell" field (TaskStatus) is
// always written last.
//
// Total size is exactly one cache line (64 bytes): six 4-byte fields, one
// 8-byte field, padded to 64.
type HandshakeCell struct {
	AicpuReady    atomic.Uint32 // scheduler -> worker bring-up flag
	AicoreDone    atomic.Uint32 // worker -> scheduler bring-up ack (core_index + 1)
	Control       atomic.Uint32 // 0 = execute, 1 = quit
	CoreKind      uint32        // 0 = Cube, 1 = Vector; set once before launch
	TaskStatus    atomic.Uint32 // 0 = idle/complete, 1 = busy; the authoritative doorbell
	ProfileEnable uint32        // reserved, carried for layout parity with the original Handshake struct; currently inert
	Task          atomic.Uint64 // device address of the dispatched Task; 0 = idle-empty
	_             [32]byte      // pad to CacheLineSize
}

// NewHandshakeCell returns a zeroed cell tagged with the given core kind.
func NewHandshakeCell(kind core.CoreKind) *HandshakeCell {
	c := &HandshakeCell{CoreKind: uint32(kind)}
	return c
}

// Kind returns the cell's fixed core-kind affinity.
func (c *HandshakeCell) Kind() core.CoreKind {
	return core.CoreKind(c.CoreKind)
}

// Reset zeroes the mutable fields of the cell. Called by the host before
// every execute call: cells do not carry state across calls.
func (c *HandshakeCell) Reset() {
	c.AicpuReady.Store(0)
	c.AicoreDone.Store(0)
	c.Control.Store(0)
	c.TaskStatus.Store(0)
	c.Task.Store(0)
}

// SchedulerSignalReady is step 2 of bring-up: the scheduler announces the
// cell is live.
func (c *HandshakeCell) SchedulerSignalReady() {
	c.AicpuReady.Store(1)
}

// IsReady reports whether the scheduler has signalled bring-up.
func (c *HandshakeCell) IsReady() bool {
	return c.AicpuReady.Load() != 0
}

// WorkerAck is step 3 of bring-up: the worker acknowledges with its
// one-based core index so a scheduler can, in principle, identify which
// physical core acked.
func (c *HandshakeCell) WorkerAck(coreIndex int) {
	c.AicoreDone.Store(uint32(coreIndex + 1))
}

// IsWorkerAcked reports whether the worker has completed bring-up.
func (c *HandshakeCell) IsWorkerAcked() bool {
	return c.AicoreDone.Load() != 0
}

// RequestQuit is the scheduler's shutdown signal; the worker observes it at
// the top of its next loop iteration and exits.
func (c *HandshakeCell) RequestQuit() {
	c.Control.Store(1)
}

// ShouldQuit reports whether the worker's polling loop should exit.
func (c *HandshakeCell) ShouldQuit() bool {
	return c.Control.Load() == 1
}

// IsIdle reports whether the cell holds neither a dispatched task nor a
// pending completion: the state a scheduler looks for before dispatching.
func (c *HandshakeCell) IsIdle() bool {
	return c.TaskStatus.Load() == 0 && c.Task.Load() == 0
}

// Dispatch publishes a task to the cell. The task address is written
// first, then the doorbell (TaskStatus) last: the worker must never
// observe TaskStatus == 1 with a stale or zero Task value.
func (c *HandshakeCell) Dispatch(taskAddr uint64) {
	c.Task.Store(taskAddr)
	c.TaskStatus.Store(1)
}

// Poll is the worker's read of the doorbell: it returns the task address
// and whether the cell is currently busy. Called every loop iteration.
func (c *HandshakeCell) Poll() (taskAddr uint64, busy bool) {
	if c.TaskStatus.Load() != 1 {
		return 0, false
	}
	return c.Task.Load(), true
}

// CompleteWork is the worker's side of completion: it clears only
// TaskStatus. Task is left non-zero so the scheduler can see which task
// finished; TaskStatus, not the Task record's own Status field, is the
// authoritative doorbell.
func (c *HandshakeCell) CompleteWork() {
	c.TaskStatus.Store(0)
}

// HasCompletion is the scheduler's read of a possible completion: the
// conjunction task_status == 0 && task != 0. It never mutates the cell.
func (c *HandshakeCell) HasCompletion() (taskAddr uint64, ok bool) {
	if c.TaskStatus.Load() != 0 {
		return 0, false
	}
	addr := c.Task.Load()
	if addr == 0 {
		return 0, false
	}
	return addr, true
}

// ClearTask is the scheduler's acknowledgement of a collected completion.
// Only the scheduler ever writes Task to zero.
func (c *HandshakeCell) ClearTask() {
	c.Task.Store(0)
}
