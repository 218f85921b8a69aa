package runtime

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/ChaoWao/pto-isa/core"
	"github.com/ChaoWao/pto-isa/model"
)

// MaxSchedulerThreads bounds the scheduler thread count, mirroring the
// static bounds the rest of the device-memory layout keeps. Chosen well
// above any realistic dependency-thread configuration from the original
// runtime's defaults (3).
const MaxSchedulerThreads = 64

// MaxCoresPerThread bounds how many cores a single scheduler thread may
// own, keeping the per-thread assignment table statically sized.
const MaxCoresPerThread = 64

// ReadyQueue is a bounded, mutex-protected LIFO of task_ids whose fanin has
// reached zero. Stack order is a policy choice, not a correctness
// constraint; the mutex serializes producers and consumers, and Len is a
// relaxed fast-path read acceptable only for emptiness checks.
type ReadyQueue struct {
	mu    sync.Mutex
	items []int32
	count atomic.Int32
}

// NewReadyQueue returns an empty queue with capacity reserved up front.
func NewReadyQueue(capacity int) *ReadyQueue {
	return &ReadyQueue{items: make([]int32, 0, capacity)}
}

// Push appends a task_id. The slot is written before the count is
// incremented (release), so a concurrent Len observer never sees a count
// that outruns the data it counts.
func (q *ReadyQueue) Push(taskID int32) {
	q.mu.Lock()
	q.items = append(q.items, taskID)
	q.mu.Unlock()
	q.count.Add(1)
}

// Pop removes and returns the most recently pushed task_id.
func (q *ReadyQueue) Pop() (int32, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	if n == 0 {
		return 0, false
	}
	id := q.items[n-1]
	q.items = q.items[:n-1]
	q.count.Add(-1)
	return id, true
}

// Len is a relaxed, fast-path count suitable only for emptiness checks, not
// for correctness decisions.
func (q *ReadyQueue) Len() int32 {
	return q.count.Load()
}

// schedulerState is the process-wide state shared by every scheduler thread
// during one execute call. It is an owned context object passed explicitly
// to each thread, not process-global: a fresh one is constructed per
// execute rather than reset in place, so threads from different execute
// calls can never observe each other's barrier state.
type schedulerState struct {
	totalTasks     atomic.Int32
	completedTasks atomic.Int32
	cubeQueue      *ReadyQueue
	vecQueue       *ReadyQueue

	initElected atomic.Bool
	initDone    atomic.Bool
	initFailed  atomic.Bool

	finishedCount atomic.Int32
	threadCount   int32

	cubeCompleted atomic.Int32
	vecCompleted  atomic.Int32
}

func newSchedulerState(threadCount int32) *schedulerState {
	return &schedulerState{
		cubeQueue:   NewReadyQueue(core.MaxTasks),
		vecQueue:    NewReadyQueue(core.MaxTasks),
		threadCount: threadCount,
	}
}

func (s *schedulerState) queueFor(kind core.CoreKind) *ReadyQueue {
	if kind == core.Vector {
		return s.vecQueue
	}
	return s.cubeQueue
}

// ComputeAssignment partitions nrAic+nrAiv worker core indices across
// threadCount scheduler threads: a disjoint union covering every worker.
// When every thread gets exactly one AIC and two AIV cores (nrAic ==
// threadCount and nrAiv == 2*threadCount), it uses the documented layout
// thread t owns {t, nrAic + 2t, nrAic + 2t + 1}; otherwise, including other
// 1:2 configurations such as 24 AIC / 48 AIV over 3 threads, it falls back
// to a contiguous partition.
func ComputeAssignment(nrAic, nrAiv, threadCount int) ([][]int, error) {
	if threadCount <= 0 || threadCount > MaxSchedulerThreads {
		return nil, fmt.Errorf("scheduler thread count %d out of range", threadCount)
	}
	total := nrAic + nrAiv
	if total == 0 {
		return make([][]int, threadCount), nil
	}

	assignment := make([][]int, threadCount)
	if nrAic == threadCount && nrAiv == 2*threadCount {
		for t := 0; t < threadCount; t++ {
			assignment[t] = []int{t, nrAic + 2*t, nrAic + 2*t + 1}
		}
	} else {
		base := total / threadCount
		rem := total % threadCount
		cursor := 0
		for t := 0; t < threadCount; t++ {
			n := base
			if t < rem {
				n++
			}
			for i := 0; i < n; i++ {
				assignment[t] = append(assignment[t], cursor)
				cursor++
			}
		}
	}

	for _, cores := range assignment {
		if len(cores) > MaxCoresPerThread {
			return nil, fmt.Errorf("thread owns %d cores, exceeds MaxCoresPerThread (%d)", len(cores), MaxCoresPerThread)
		}
	}
	return assignment, nil
}

// SchedulerThread is one scheduler thread's private view: the cells it
// owns (a disjoint subset of all workers) and the shared state and graph
// every thread reads and mutates through atomics and the queue mutexes.
type SchedulerThread struct {
	ID    int
	Cells []*HandshakeCell

	state *schedulerState
	mem   *TaskMemory
	graph *model.TaskGraph
}

// Run executes one scheduler thread end to end: per-cell bring-up, the
// (possibly elected) init barrier, the drain loop, and the exit barrier. It
// returns a non-nil *Error only on init failure; there is no mid-execution
// error.
func (st *SchedulerThread) Run() error {
	for _, cell := range st.Cells {
		cell.SchedulerSignalReady()
	}
	for _, cell := range st.Cells {
		for !cell.IsWorkerAcked() {
			runtime.Gosched()
		}
	}

	if st.state.initElected.CompareAndSwap(false, true) {
		st.runInit()
	}
	for !st.state.initDone.Load() && !st.state.initFailed.Load() {
		runtime.Gosched()
	}
	if st.state.initFailed.Load() {
		return Wrap(ErrInvalidConfig, "scheduler init barrier failed", nil)
	}

	for st.state.completedTasks.Load() < st.state.totalTasks.Load() {
		st.collectCompletions()
		st.dispatch()
		runtime.Gosched()
	}

	for _, cell := range st.Cells {
		cell.RequestQuit()
	}

	// Exit barrier: the original runtime keeps scheduler state static across
	// execute calls, so the last thread through here resets it to zero in
	// place. This implementation builds a fresh schedulerState per execute
	// instead, so there is nothing left to reset on this object; the
	// increment below is kept for protocol fidelity only, and nothing reads
	// finishedCount.
	st.state.finishedCount.Add(1)
	return nil
}

// runInit is the initialization barrier, performed exactly once per
// execute by whichever thread wins the atomic CAS election.
func (st *SchedulerThread) runInit() {
	st.state.totalTasks.Store(st.graph.NumTasks())
	for _, id := range st.graph.InitialReady() {
		t, err := st.graph.Get(id)
		if err != nil {
			st.state.initFailed.Store(true)
			return
		}
		st.state.queueFor(t.CoreKind).Push(id)
	}
	st.state.initDone.Store(true)
}

// collectCompletions recognizes completions on owned cells, decrements
// successor fanin, pushes newly ready tasks, and acknowledges the cell.
func (st *SchedulerThread) collectCompletions() {
	for _, cell := range st.Cells {
		addr, ok := cell.HasCompletion()
		if !ok {
			continue
		}
		t, err := st.mem.Resolve(addr)
		if err != nil {
			cell.ClearTask()
			continue
		}
		t.Status.Store(int32(core.Complete))

		for d := int32(0); d < t.NumDependents; d++ {
			succID := t.Dependents[d]
			succ, err := st.graph.Get(succID)
			if err != nil {
				continue
			}
			if succ.Fanin.Add(-1) == 0 {
				st.state.queueFor(succ.CoreKind).Push(succID)
			}
		}

		cell.ClearTask()
		st.graph.IncrementCompleted()
		st.state.completedTasks.Add(1)
		if t.CoreKind == core.Vector {
			st.state.vecCompleted.Add(1)
		} else {
			st.state.cubeCompleted.Add(1)
		}
	}
}

// dispatch matches idle owned cells to ready tasks of the matching kind,
// or yields if every owned core is already busy.
func (st *SchedulerThread) dispatch() {
	busy := 0
	for _, cell := range st.Cells {
		if !cell.IsIdle() {
			busy++
			continue
		}
		id, ok := st.state.queueFor(cell.Kind()).Pop()
		if !ok {
			continue
		}
		t, err := st.graph.Get(id)
		if err != nil {
			continue
		}
		t.Status.Store(int32(core.Running))
		cell.Dispatch(st.mem.Addr(id))
	}
	if busy == len(st.Cells) {
		return
	}
}
