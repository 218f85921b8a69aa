package runtime

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ChaoWao/pto-isa/core"
	"github.com/ChaoWao/pto-isa/kernels"
	"github.com/ChaoWao/pto-isa/model"
)

// Config mirrors the original runtime's A2A3Config: worker-core counts per
// kind and the scheduler thread count. NrAic workers own Cube-affinity
// cells, NrAiv workers own Vector-affinity cells.
type Config struct {
	NrAic            int
	NrAiv            int
	SchedulerThreads int
}

// DefaultConfig returns the original runtime's production defaults
// (A2A3_DEFAULT_AIC_WORKERS=24, A2A3_DEFAULT_AIV_WORKERS=48,
// A2A3_DEFAULT_DEP_THREADS=3 in a2a3_runtime_api.h): a 1:2 AIC:AIV ratio
// across three scheduler threads. The original's separate
// num_orch_threads knob, for dynamically generated task graphs, has no
// counterpart here: this runtime executes one static DAG per Execute call.
func DefaultConfig() Config {
	return Config{NrAic: 24, NrAiv: 48, SchedulerThreads: 3}
}

func (c Config) validate() error {
	if c.NrAic < 0 || c.NrAiv < 0 {
		return Wrap(ErrInvalidConfig, "worker counts must be non-negative", nil)
	}
	if c.NrAic+c.NrAiv == 0 {
		return Wrap(ErrInvalidConfig, "at least one worker core is required", nil)
	}
	if c.NrAic+c.NrAiv > core.MaxWorkers {
		return Wrap(ErrInvalidConfig, fmt.Sprintf("worker count %d exceeds MaxWorkers (%d)", c.NrAic+c.NrAiv, core.MaxWorkers), nil)
	}
	if c.SchedulerThreads <= 0 || c.SchedulerThreads > MaxSchedulerThreads {
		return Wrap(ErrInvalidConfig, fmt.Sprintf("scheduler thread count %d out of range", c.SchedulerThreads), nil)
	}
	return nil
}

// LaunchDescriptor is the host->device launch contract ("KernelArgs"),
// supplemented from the original's DeviceArgs/PTOKernelArgs (a2a3_runtime.c,
// pto_task.h): everything a real accelerator launch would need copied to
// device shared memory before starting the scheduler and worker kernels.
// This simulation never crosses a real host/device boundary, but
// Engine.Execute builds one on every call so the handoff shape stays
// load-bearing rather than decorative.
type LaunchDescriptor struct {
	DeviceArgs       uint64 // base address of the staged TaskGraph
	HankArgs         uint64 // base address of the handshake cell array
	GraphArgs        uint64 // duplicate of DeviceArgs, named per the original contract
	CoreNum          int
	AicNum           int
	AivNum           int
	SchedulerThreads int
}

// Stats is the result of get_stats: per-kind and total completion counts
// plus wall time, sufficient for print_stats to report a one-line
// execution summary.
type Stats struct {
	TasksScheduled int64
	TasksCompleted int64
	CubeTasks      int64
	VectorTasks    int64
	WallTime       time.Duration
}

// Engine is the host-side launch orchestrator and the runtime's only
// exported entry point: it owns the handshake cell array, the kernel
// registry, and the arena backing simulated device memory, and drives one
// execute call's bring-up, scheduler/worker fan-out, and tear-down.
type Engine struct {
	mu          sync.RWMutex
	cfg         Config
	cells       []*HandshakeCell
	registry    *kernels.Registry
	arena       *Arena
	initialized bool
	stats       Stats
	lastLaunch  LaunchDescriptor
}

// NewEngine constructs an Engine without initializing it; call Init before
// Execute.
func NewEngine() *Engine {
	return &Engine{registry: kernels.NewRegistry()}
}

// Init is the Host API's init(config): validates the configuration,
// allocates the handshake cell array and an arena for simulated device
// memory, and tags each cell with its fixed core-kind affinity. Calling
// Init twice without an intervening Finalize is AlreadyInit.
func (e *Engine) Init(cfg Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.initialized {
		return Wrap(ErrAlreadyInit, "engine already initialized", nil)
	}
	if err := cfg.validate(); err != nil {
		return err
	}

	cells := make([]*HandshakeCell, cfg.NrAic+cfg.NrAiv)
	for i := 0; i < cfg.NrAic; i++ {
		cells[i] = NewHandshakeCell(core.Cube)
	}
	for i := cfg.NrAic; i < cfg.NrAic+cfg.NrAiv; i++ {
		cells[i] = NewHandshakeCell(core.Vector)
	}

	arenaSize := uintptr(core.HandshakeCellsSize(len(cells))) + uintptr(core.MaxTasks)*uintptr(core.TaskWireSize)
	arena, err := NewArena(arenaSize)
	if err != nil {
		return err
	}

	e.cfg = cfg
	e.cells = cells
	e.arena = arena
	e.initialized = true
	return nil
}

// RegisterKernel is the Host API's register_kernel(func_id, binary_path,
// core_kind).
func (e *Engine) RegisterKernel(funcID int32, binaryPath string, kind core.CoreKind) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.initialized {
		return Wrap(ErrNotInitialized, "engine not initialized", nil)
	}
	if err := e.registry.Register(funcID, binaryPath, kind); err != nil {
		return Wrap(ErrBinaryLoadFailed, "register_kernel", err)
	}
	return nil
}

// RegisterKernelFunc binds an in-process simulation implementation to
// func_id, so Execute has something to actually run in the absence of real
// accelerator hardware (see kernels.Registry.RegisterFunc).
func (e *Engine) RegisterKernelFunc(funcID int32, kind core.CoreKind, fn kernels.KernelFn) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.initialized {
		return Wrap(ErrNotInitialized, "engine not initialized", nil)
	}
	return e.registry.RegisterFunc(funcID, kind, fn)
}

// Malloc, Free, CopyToDevice, and CopyFromDevice expose the arena-backed
// device memory primitives of the Host API, independent of any one
// execute call.
func (e *Engine) Malloc(size uintptr) (uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.initialized {
		return 0, Wrap(ErrNotInitialized, "engine not initialized", nil)
	}
	return e.arena.Malloc(size)
}

func (e *Engine) Free(addr uint64) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.initialized {
		return Wrap(ErrNotInitialized, "engine not initialized", nil)
	}
	return e.arena.Free(addr)
}

func (e *Engine) CopyToDevice(addr uint64, data []byte) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.initialized {
		return Wrap(ErrNotInitialized, "engine not initialized", nil)
	}
	return e.arena.CopyToDevice(addr, data)
}

func (e *Engine) CopyFromDevice(addr uint64, size int) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.initialized {
		return nil, Wrap(ErrNotInitialized, "engine not initialized", nil)
	}
	return e.arena.CopyFromDevice(addr, size)
}

// bringUp resets every handshake cell to its idle state before a graph is
// staged: cells do not carry state across execute calls.
func (e *Engine) bringUp() {
	for _, cell := range e.cells {
		cell.Reset()
	}
}

// tearDown is a no-op beyond documentation: cell state at exit (Control==1
// on every cell) is left in place for diagnostics until the next bringUp,
// mirroring the original runtime, which does not zero the handshake array
// between calls either.
func (e *Engine) tearDown() {}

// buildDescriptor assembles the host->device launch contract for one
// execute call.
func (e *Engine) buildDescriptor(graphAddr uint64) LaunchDescriptor {
	return LaunchDescriptor{
		DeviceArgs:       graphAddr,
		HankArgs:         core.DeviceBase,
		GraphArgs:        graphAddr,
		CoreNum:          len(e.cells),
		AicNum:           e.cfg.NrAic,
		AivNum:           e.cfg.NrAiv,
		SchedulerThreads: e.cfg.SchedulerThreads,
	}
}

// Execute is the Host API's execute(graph): it resets the graph's
// counters for a clean re-run, stages the graph and handshake array,
// launches one goroutine per worker core and one per scheduler thread,
// waits for the scheduler threads to drain the graph and send the quit
// signal, and then waits for workers to observe it and return.
func (e *Engine) Execute(graph *model.TaskGraph) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return Wrap(ErrNotInitialized, "engine not initialized", nil)
	}
	if err := graph.Validate(); err != nil {
		return Wrap(ErrInvalidConfig, "graph validation failed", err)
	}

	start := time.Now()
	graph.ResetForExecute()
	e.bringUp()
	e.lastLaunch = e.buildDescriptor(core.DeviceBase)

	mem := NewTaskMemory(graph)
	assignment, err := ComputeAssignment(e.cfg.NrAic, e.cfg.NrAiv, e.cfg.SchedulerThreads)
	if err != nil {
		return Wrap(ErrInvalidConfig, "compute scheduler assignment", err)
	}

	state := newSchedulerState(int32(e.cfg.SchedulerThreads))

	var workerWG sync.WaitGroup
	workers := make([]*Worker, len(e.cells))
	for i, cell := range e.cells {
		w := NewWorker(i, cell, e.registry, mem)
		workers[i] = w
		workerWG.Add(1)
		go func(w *Worker) {
			defer workerWG.Done()
			w.Run()
		}(w)
	}

	var schedWG sync.WaitGroup
	schedErrs := make([]error, len(assignment))
	for t, cores := range assignment {
		cells := make([]*HandshakeCell, 0, len(cores))
		for _, ci := range cores {
			if ci >= 0 && ci < len(e.cells) {
				cells = append(cells, e.cells[ci])
			}
		}
		st := &SchedulerThread{ID: t, Cells: cells, state: state, mem: mem, graph: graph}
		schedWG.Add(1)
		go func(idx int, st *SchedulerThread) {
			defer schedWG.Done()
			schedErrs[idx] = st.Run()
		}(t, st)
	}

	schedWG.Wait()
	workerWG.Wait()

	for _, err := range schedErrs {
		if err != nil {
			e.tearDown()
			return err
		}
	}

	e.tearDown()

	e.stats = Stats{
		TasksScheduled: int64(graph.NumTasks()),
		TasksCompleted: int64(graph.TasksCompleted()),
		CubeTasks:      int64(state.cubeCompleted.Load()),
		VectorTasks:    int64(state.vecCompleted.Load()),
		WallTime:       time.Since(start),
	}

	for _, w := range workers {
		if w.LastErr != nil {
			return Wrap(ErrDeviceLaunch, fmt.Sprintf("worker %d", w.Index), w.LastErr)
		}
	}
	return nil
}

// Finalize is the Host API's finalize(): releases the engine back to an
// uninitialized state so Init may be called again.
func (e *Engine) Finalize() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return Wrap(ErrNotInitialized, "engine not initialized", nil)
	}
	e.cells = nil
	e.arena = nil
	e.initialized = false
	return nil
}

// GetStats is the Host API's get_stats(): the most recent Execute call's
// counters.
func (e *Engine) GetStats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats
}

// LastLaunchDescriptor returns the host->device launch contract built by
// the most recent Execute call, for diagnostics and tests.
func (e *Engine) LastLaunchDescriptor() LaunchDescriptor {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastLaunch
}

// PrintStats is the Host API's print_stats(): a one-line human-readable
// summary, including the host CPU's vector-instruction class
// (kernels.Features) so a launch log records which kernel-binary flavor
// was expected to run.
func (e *Engine) PrintStats(w io.Writer) {
	s := e.GetStats()
	fmt.Fprintf(w, "tasks=%d completed=%d cube=%d vector=%d wall=%s features=%s\n",
		s.TasksScheduled, s.TasksCompleted, s.CubeTasks, s.VectorTasks, s.WallTime, kernels.Features())
}
