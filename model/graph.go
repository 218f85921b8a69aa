// Package model owns the TaskGraph: the flat, bounded-capacity array of
// Tasks that the scheduler walks during one execute call, together with its
// build-time operations (add_task, add_edge) and its bit-exact binary wire
// format for staging to device shared memory.
//
// A TaskGraph is built once, host-side, then treated as read-only except
// for each Task's atomic fanin counter and the graph's own
// tasks-completed counter, both of which the scheduler mutates during
// execute. No pointers cross the graph/runtime boundary; successors
// are task_id indices, resolved to device addresses at dispatch time by the
// runtime package.
package model

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"github.com/ChaoWao/pto-isa/core"
)

// GraphMagic identifies the TaskGraph binary wire format ("PTGB").
const GraphMagic = 0x42475450

// GraphVersion is the current wire format version.
const GraphVersion = 1

// TaskGraph owns a flat, bounded array of Task records plus the number of
// completed tasks. Capacity is fixed at core.MaxTasks for cache-locality and
// device-memory predictability; dynamic growth is a non-goal.
type TaskGraph struct {
	tasks          []core.Task
	tasksCompleted atomic.Int32
}

// NewTaskGraph returns an empty graph with capacity pre-reserved so that
// AddTask never reallocates (and therefore never copies an in-use Task,
// atomics and all).
func NewTaskGraph() *TaskGraph {
	return &TaskGraph{tasks: make([]core.Task, 0, core.MaxTasks)}
}

// NumTasks returns the number of tasks appended to the graph.
func (g *TaskGraph) NumTasks() int32 {
	return int32(len(g.tasks))
}

// TasksCompleted returns the live count of tasks whose status is Complete.
func (g *TaskGraph) TasksCompleted() int32 {
	return g.tasksCompleted.Load()
}

// IncrementCompleted is called by the scheduler exactly once per task
// completion.
func (g *TaskGraph) IncrementCompleted() int32 {
	return g.tasksCompleted.Add(1)
}

// ResetCompleted zeroes the completion counter. The scheduler's exit
// barrier does not call it; Engine.Execute starts each run clean through
// ResetForExecute instead.
func (g *TaskGraph) ResetCompleted() {
	g.tasksCompleted.Store(0)
}

// ResetForExecute restores every task to its build-time state: fanin back
// to its initial dependency count, status back to Pending, and the
// graph-level completion counter to zero. The launch orchestrator calls
// this at the start of every Execute so that re-running the same graph
// begins with identical counters to the first run.
func (g *TaskGraph) ResetForExecute() {
	for i := range g.tasks {
		t := &g.tasks[i]
		t.Fanin.Store(t.DepsRemaining.Load())
		t.Status.Store(int32(core.Pending))
	}
	g.tasksCompleted.Store(0)
}

// AddTask appends a new Task with fanin 0 and status Pending. Capacity
// overflow is a build-time fatal error the caller must reject the DAG for.
//
// Task carries atomic counters, so it is never copied by value once
// constructed: AddTask grows the pre-reserved backing array in place (see
// NewTaskGraph) and initializes the new element through a pointer, the same
// way ResetForExecute and AddEdge mutate existing elements.
func (g *TaskGraph) AddTask(funcID int32, kind core.CoreKind, funcName string, binAddr uint64, args []core.TaskArg) (int32, error) {
	if len(g.tasks) >= core.MaxTasks {
		return 0, fmt.Errorf("model: graph exceeds MaxTasks (%d)", core.MaxTasks)
	}
	if err := core.ValidateTaskShape(funcName, args); err != nil {
		return 0, err
	}
	id := int32(len(g.tasks))
	g.tasks = g.tasks[:id+1]
	t := &g.tasks[id]
	t.TaskID = id
	t.FuncID = funcID
	t.FunctionBinAddr = binAddr
	t.NumArgs = int32(len(args))
	t.CoreKind = kind
	copy(t.FuncName[:], funcName)
	copy(t.Args[:], args)
	t.Status.Store(int32(core.Pending))
	return id, nil
}

// AddEdge records that v depends on u: appends v to u's fan-out and
// increments v's fanin. Must only be called during build, before any
// execute call has started walking the graph.
func (g *TaskGraph) AddEdge(u, v int32) error {
	pu, err := g.at(u)
	if err != nil {
		return err
	}
	pv, err := g.at(v)
	if err != nil {
		return err
	}
	if err := pu.AddDependent(v); err != nil {
		return err
	}
	pv.Fanin.Add(1)
	pv.DepsRemaining.Add(1)
	return nil
}

// InitialReady returns the task_ids of every task with fanin == 0.
func (g *TaskGraph) InitialReady() []int32 {
	var ready []int32
	for i := range g.tasks {
		if g.tasks[i].Fanin.Load() == 0 {
			ready = append(ready, g.tasks[i].TaskID)
		}
	}
	return ready
}

// Get returns a pointer to the Task with the given id.
func (g *TaskGraph) Get(taskID int32) (*core.Task, error) {
	return g.at(taskID)
}

func (g *TaskGraph) at(taskID int32) (*core.Task, error) {
	if taskID < 0 || int(taskID) >= len(g.tasks) {
		return nil, fmt.Errorf("model: task id %d out of range", taskID)
	}
	return &g.tasks[taskID], nil
}

// Validate checks structural consistency: every dependent reference is in
// range, and the graph is acyclic (a prerequisite for the fanin arithmetic
// to ever reach zero for every task).
func (g *TaskGraph) Validate() error {
	n := int32(len(g.tasks))
	for i := range g.tasks {
		t := &g.tasks[i]
		for d := int32(0); d < t.NumDependents; d++ {
			succ := t.Dependents[d]
			if succ < 0 || succ >= n {
				return fmt.Errorf("model: task %d has out-of-range dependent %d", t.TaskID, succ)
			}
		}
	}
	return g.checkAcyclic()
}

func (g *TaskGraph) checkAcyclic() error {
	inDegree := make([]int32, len(g.tasks))
	for i := range g.tasks {
		inDegree[i] = g.tasks[i].DepsRemaining.Load()
	}
	queue := make([]int32, 0, len(g.tasks))
	for i, d := range inDegree {
		if d == 0 {
			queue = append(queue, int32(i))
		}
	}
	processed := 0
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		processed++
		t := &g.tasks[cur]
		for d := int32(0); d < t.NumDependents; d++ {
			succ := t.Dependents[d]
			inDegree[succ]--
			if inDegree[succ] == 0 {
				queue = append(queue, succ)
			}
		}
	}
	if processed != len(g.tasks) {
		return fmt.Errorf("model: graph contains a cycle")
	}
	return nil
}

// Serialize writes the TaskGraph to its bit-exact binary wire format:
// magic, version, num_tasks, tasks_completed, crc32 of the task records,
// then each Task record in full declared-field order.
func (g *TaskGraph) Serialize() ([]byte, error) {
	var body bytes.Buffer
	for i := range g.tasks {
		if err := writeTask(&body, &g.tasks[i]); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, uint32(GraphMagic)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint16(GraphVersion)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, int32(len(g.tasks))); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, g.tasksCompleted.Load()); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, core.CRC32(body.Bytes())); err != nil {
		return nil, err
	}
	buf.Write(body.Bytes())
	return buf.Bytes(), nil
}

// Deserialize reads a TaskGraph from its binary wire format.
func Deserialize(data []byte) (*TaskGraph, error) {
	buf := bytes.NewReader(data)

	var magic uint32
	if err := binary.Read(buf, binary.LittleEndian, &magic); err != nil {
		return nil, err
	}
	if magic != GraphMagic {
		return nil, fmt.Errorf("model: invalid magic number %#x", magic)
	}

	var version uint16
	if err := binary.Read(buf, binary.LittleEndian, &version); err != nil {
		return nil, err
	}
	if version != GraphVersion {
		return nil, fmt.Errorf("model: unsupported version %d", version)
	}

	var numTasks, tasksCompleted int32
	if err := binary.Read(buf, binary.LittleEndian, &numTasks); err != nil {
		return nil, err
	}
	if err := binary.Read(buf, binary.LittleEndian, &tasksCompleted); err != nil {
		return nil, err
	}
	if numTasks < 0 || int(numTasks) > core.MaxTasks {
		return nil, fmt.Errorf("model: num_tasks %d exceeds MaxTasks", numTasks)
	}

	var checksum uint32
	if err := binary.Read(buf, binary.LittleEndian, &checksum); err != nil {
		return nil, err
	}

	body := make([]byte, buf.Len())
	if _, err := buf.Read(body); err != nil {
		return nil, err
	}
	if core.CRC32(body) != checksum {
		return nil, fmt.Errorf("model: checksum mismatch, graph data corrupted")
	}

	bodyReader := bytes.NewReader(body)
	g := &TaskGraph{tasks: make([]core.Task, numTasks, core.MaxTasks)}
	for i := int32(0); i < numTasks; i++ {
		if err := readTask(bodyReader, &g.tasks[i]); err != nil {
			return nil, err
		}
	}
	g.tasksCompleted.Store(tasksCompleted)
	return g, nil
}

func writeTask(w *bytes.Buffer, t *core.Task) error {
	fields := []interface{}{
		t.TaskID,
		t.FuncID,
		t.FuncName,
		t.FunctionBinAddr,
		t.NumArgs,
	}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	for _, a := range t.Args {
		if err := binary.Write(w, binary.LittleEndian, a); err != nil {
			return err
		}
	}
	tail := []interface{}{
		t.Fanin.Load(),
		t.DepsRemaining.Load(),
		t.NumDependents,
		t.Dependents,
		t.Status.Load(),
		int32(t.CoreKind),
	}
	for _, f := range tail {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	return nil
}

func readTask(r *bytes.Reader, t *core.Task) error {
	if err := binary.Read(r, binary.LittleEndian, &t.TaskID); err != nil {
		return err
	}
	if err := binary.Read(r, binary.LittleEndian, &t.FuncID); err != nil {
		return err
	}
	if err := binary.Read(r, binary.LittleEndian, &t.FuncName); err != nil {
		return err
	}
	if err := binary.Read(r, binary.LittleEndian, &t.FunctionBinAddr); err != nil {
		return err
	}
	if err := binary.Read(r, binary.LittleEndian, &t.NumArgs); err != nil {
		return err
	}
	for i := range t.Args {
		if err := binary.Read(r, binary.LittleEndian, &t.Args[i]); err != nil {
			return err
		}
	}
	var fanin, depsRemaining, status int32
	if err := binary.Read(r, binary.LittleEndian, &fanin); err != nil {
		return err
	}
	if err := binary.Read(r, binary.LittleEndian, &depsRemaining); err != nil {
		return err
	}
	if err := binary.Read(r, binary.LittleEndian, &t.NumDependents); err != nil {
		return err
	}
	if err := binary.Read(r, binary.LittleEndian, &t.Dependents); err != nil {
		return err
	}
	if err := binary.Read(r, binary.LittleEndian, &status); err != nil {
		return err
	}
	var kind int32
	if err := binary.Read(r, binary.LittleEndian, &kind); err != nil {
		return err
	}
	t.Fanin.Store(fanin)
	t.DepsRemaining.Store(depsRemaining)
	t.Status.Store(status)
	t.CoreKind = core.CoreKind(kind)
	return nil
}
