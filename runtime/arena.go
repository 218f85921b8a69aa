package runtime

import (
	"fmt"
	"sync"

	"github.com/ChaoWao/pto-isa/core"
	"github.com/ChaoWao/pto-isa/model"
)

// TaskMemory implements the handshake cell's addressing scheme: a device
// address computed as graph_base + task_id * sizeof(Task) at dispatch. The
// base is intentionally non-zero so that task_id 0's address is never
// confused with an idle cell's Task == 0.
type TaskMemory struct {
	graph *model.TaskGraph
}

// NewTaskMemory binds a TaskMemory to the graph being executed.
func NewTaskMemory(g *model.TaskGraph) *TaskMemory {
	return &TaskMemory{graph: g}
}

// Addr computes the device address a handshake cell should carry for the
// given task_id.
func (m *TaskMemory) Addr(taskID int32) uint64 {
	return core.DeviceBase + uint64(taskID)*core.TaskWireSize
}

// Resolve inverts Addr, returning the Task a worker or scheduler should
// act on for a given cell's published address.
func (m *TaskMemory) Resolve(addr uint64) (*core.Task, error) {
	if addr < core.DeviceBase {
		return nil, fmt.Errorf("runtime: address %#x below device base", addr)
	}
	rel := addr - core.DeviceBase
	if rel%core.TaskWireSize != 0 {
		return nil, fmt.Errorf("runtime: address %#x misaligned to task stride", addr)
	}
	id := int32(rel / core.TaskWireSize)
	return m.graph.Get(id)
}

// region records one allocation inside the Arena, for Free and diagnostic
// accounting.
type region struct {
	offset uintptr
	size   uintptr
	freed  bool
}

// Arena is the host-side mirror of device shared memory: a bump allocator
// over a single backing buffer, used to simulate malloc/free/
// copy_to_device/copy_from_device without a real accelerator present.
// Every address it hands out is cache-line aligned so a HandshakeCell array
// carved from it never straddles a line. Allocations are tracked in an open
// table keyed by device address rather than a handful of named, fixed
// regions, since task args name arbitrary device buffers rather than a
// small set of well-known sections.
type Arena struct {
	mu      sync.Mutex
	buffer  []byte
	cursor  uintptr
	regions map[uint64]*region
}

// NewArena allocates a backing buffer of the requested size.
func NewArena(size uintptr) (*Arena, error) {
	if size == 0 {
		return nil, Wrap(ErrMemoryAlloc, "arena size must be positive", nil)
	}
	return &Arena{
		buffer:  make([]byte, size),
		regions: make(map[uint64]*region),
	}, nil
}

// Malloc bump-allocates size bytes, cache-line aligned, and returns a
// simulated device address.
func (a *Arena) Malloc(size uintptr) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	aligned := core.AlignedSize(a.cursor)
	if aligned+size > uintptr(len(a.buffer)) {
		return 0, Wrap(ErrMemoryAlloc, "arena exhausted", nil)
	}
	off := aligned
	a.cursor = aligned + size
	addr := core.DeviceBase + uint64(off)
	a.regions[addr] = &region{offset: off, size: size}
	return addr, nil
}

// Free marks a previously allocated region as released. The bump allocator
// never reclaims or shrinks; it only guards against double-free and
// unknown addresses so the host API's malloc/free contract holds.
func (a *Arena) Free(addr uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.regions[addr]
	if !ok {
		return Wrap(ErrMemoryAlloc, "free of unknown address", nil)
	}
	if r.freed {
		return Wrap(ErrMemoryAlloc, "double free", nil)
	}
	r.freed = true
	return nil
}

// CopyToDevice writes data into the arena at addr.
func (a *Arena) CopyToDevice(addr uint64, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.regions[addr]
	if !ok || r.freed {
		return Wrap(ErrDeviceLaunch, "copy_to_device to invalid address", nil)
	}
	if uintptr(len(data)) > r.size {
		return Wrap(ErrDeviceLaunch, "copy_to_device exceeds allocation size", nil)
	}
	copy(a.buffer[r.offset:], data)
	return nil
}

// CopyFromDevice reads size bytes back from addr.
func (a *Arena) CopyFromDevice(addr uint64, size int) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.regions[addr]
	if !ok || r.freed {
		return nil, Wrap(ErrDeviceLaunch, "copy_from_device from invalid address", nil)
	}
	if uintptr(size) > r.size {
		return nil, Wrap(ErrDeviceLaunch, "copy_from_device exceeds allocation size", nil)
	}
	out := make([]byte, size)
	copy(out, a.buffer[r.offset:r.offset+uintptr(size)])
	return out, nil
}

// TotalSize returns the arena's total backing capacity.
func (a *Arena) TotalSize() uintptr {
	return uintptr(len(a.buffer))
}

// UsedSize returns the number of bytes bump-allocated so far.
func (a *Arena) UsedSize() uintptr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cursor
}
