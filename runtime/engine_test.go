package runtime

import (
	"bytes"
	"testing"

	"github.com/ChaoWao/pto-isa/core"
	"github.com/ChaoWao/pto-isa/model"
)

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e := NewEngine()
	if err := e.Init(cfg); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := e.RegisterKernelFunc(1, core.Cube, func(args []core.TaskArg) error { return nil }); err != nil {
		t.Fatalf("RegisterKernelFunc cube: %v", err)
	}
	if err := e.RegisterKernelFunc(2, core.Vector, func(args []core.TaskArg) error { return nil }); err != nil {
		t.Fatalf("RegisterKernelFunc vector: %v", err)
	}
	return e
}

func funcIDFor(kind core.CoreKind) int32 {
	if kind == core.Vector {
		return 2
	}
	return 1
}

// TestExecuteS1Pipeline is the S1 pipeline scenario: 3 Cube tasks T0->T1->T2, nrAic=1,
// nrAiv=0, one scheduler thread.
func TestExecuteS1Pipeline(t *testing.T) {
	g := model.NewTaskGraph()
	t0, _ := g.AddTask(funcIDFor(core.Cube), core.Cube, "t0", 0, nil)
	t1, _ := g.AddTask(funcIDFor(core.Cube), core.Cube, "t1", 0, nil)
	t2, _ := g.AddTask(funcIDFor(core.Cube), core.Cube, "t2", 0, nil)
	mustEdge(t, g, t0, t1)
	mustEdge(t, g, t1, t2)

	e := newTestEngine(t, Config{NrAic: 1, NrAiv: 0, SchedulerThreads: 1})
	if err := e.Execute(g); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if g.TasksCompleted() != 3 {
		t.Fatalf("tasks_completed = %d, want 3", g.TasksCompleted())
	}
}

func TestExecuteLaunchDescriptor(t *testing.T) {
	g := model.NewTaskGraph()
	t0, _ := g.AddTask(funcIDFor(core.Cube), core.Cube, "t0", 0, nil)
	t1, _ := g.AddTask(funcIDFor(core.Vector), core.Vector, "t1", 0, nil)
	mustEdge(t, g, t0, t1)

	e := newTestEngine(t, Config{NrAic: 1, NrAiv: 1, SchedulerThreads: 1})
	if err := e.Execute(g); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	d := e.LastLaunchDescriptor()
	if d.DeviceArgs != core.DeviceBase {
		t.Fatalf("DeviceArgs = %#x, want %#x", d.DeviceArgs, uint64(core.DeviceBase))
	}
	if d.GraphArgs != d.DeviceArgs {
		t.Fatalf("GraphArgs = %#x, want to match DeviceArgs %#x", d.GraphArgs, d.DeviceArgs)
	}
	if d.CoreNum != 2 || d.AicNum != 1 || d.AivNum != 1 || d.SchedulerThreads != 1 {
		t.Fatalf("descriptor = %+v, want CoreNum=2 AicNum=1 AivNum=1 SchedulerThreads=1", d)
	}
}

// buildDiamond is the S2 diamond scenario: T0(Cube) -> T1(Vec), T0 -> T2(Vec),
// {T1,T2} -> T3(Cube).
func buildDiamond(t *testing.T) *model.TaskGraph {
	t.Helper()
	g := model.NewTaskGraph()
	t0, _ := g.AddTask(funcIDFor(core.Cube), core.Cube, "t0", 0, nil)
	t1, _ := g.AddTask(funcIDFor(core.Vector), core.Vector, "t1", 0, nil)
	t2, _ := g.AddTask(funcIDFor(core.Vector), core.Vector, "t2", 0, nil)
	t3, _ := g.AddTask(funcIDFor(core.Cube), core.Cube, "t3", 0, nil)
	mustEdge(t, g, t0, t1)
	mustEdge(t, g, t0, t2)
	mustEdge(t, g, t1, t3)
	mustEdge(t, g, t2, t3)
	return g
}

func TestExecuteS2Diamond(t *testing.T) {
	g := buildDiamond(t)
	e := newTestEngine(t, Config{NrAic: 1, NrAiv: 2, SchedulerThreads: 1})
	if err := e.Execute(g); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if g.TasksCompleted() != 4 {
		t.Fatalf("tasks_completed = %d, want 4", g.TasksCompleted())
	}
}

// TestExecuteS3WideFanout is the S3 wide-fanout scenario: T0(Cube) -> 8 Vec tasks.
func TestExecuteS3WideFanout(t *testing.T) {
	g := model.NewTaskGraph()
	t0, _ := g.AddTask(funcIDFor(core.Cube), core.Cube, "t0", 0, nil)
	for i := 0; i < 8; i++ {
		v, _ := g.AddTask(funcIDFor(core.Vector), core.Vector, "v", 0, nil)
		mustEdge(t, g, t0, v)
	}

	e := newTestEngine(t, Config{NrAic: 1, NrAiv: 2, SchedulerThreads: 1})
	if err := e.Execute(g); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if g.TasksCompleted() != 9 {
		t.Fatalf("tasks_completed = %d, want 9", g.TasksCompleted())
	}
}

// TestExecuteS4KindStarvationGuard is the S4 kind-starvation scenario: 10 Cube + 10 Vector
// tasks, no edges, nrAic=1, nrAiv=2: both kinds must drain independently.
func TestExecuteS4KindStarvationGuard(t *testing.T) {
	g := model.NewTaskGraph()
	for i := 0; i < 10; i++ {
		g.AddTask(funcIDFor(core.Cube), core.Cube, "c", 0, nil)
	}
	for i := 0; i < 10; i++ {
		g.AddTask(funcIDFor(core.Vector), core.Vector, "v", 0, nil)
	}

	e := newTestEngine(t, Config{NrAic: 1, NrAiv: 2, SchedulerThreads: 1})
	if err := e.Execute(g); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if g.TasksCompleted() != 20 {
		t.Fatalf("tasks_completed = %d, want 20", g.TasksCompleted())
	}
}

// TestExecuteS5MultiSchedulerBalance is the S5 multi-scheduler-balance scenario: 60 mixed-kind tasks,
// nrAic=3, nrAiv=6, schedulers=3 (each owns 1 Cube + 2 Vec).
func TestExecuteS5MultiSchedulerBalance(t *testing.T) {
	g := model.NewTaskGraph()
	for i := 0; i < 30; i++ {
		g.AddTask(funcIDFor(core.Cube), core.Cube, "c", 0, nil)
	}
	for i := 0; i < 30; i++ {
		g.AddTask(funcIDFor(core.Vector), core.Vector, "v", 0, nil)
	}

	e := newTestEngine(t, Config{NrAic: 3, NrAiv: 6, SchedulerThreads: 3})
	if err := e.Execute(g); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if g.TasksCompleted() != 60 {
		t.Fatalf("tasks_completed = %d, want 60", g.TasksCompleted())
	}
}

// TestExecuteS6Reset is the S6 reset scenario: run S2, then re-run it on the same
// engine; the second run's counters begin at zero and the result matches.
func TestExecuteS6Reset(t *testing.T) {
	g := buildDiamond(t)
	e := newTestEngine(t, Config{NrAic: 1, NrAiv: 2, SchedulerThreads: 1})

	if err := e.Execute(g); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	first := e.GetStats()
	if first.TasksCompleted != 4 {
		t.Fatalf("first run tasks_completed = %d, want 4", first.TasksCompleted)
	}

	if err := e.Execute(g); err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	second := e.GetStats()
	if second.TasksCompleted != 4 {
		t.Fatalf("second run tasks_completed = %d, want 4", second.TasksCompleted)
	}
	if g.TasksCompleted() != 4 {
		t.Fatalf("graph tasks_completed after reset run = %d, want 4", g.TasksCompleted())
	}
}

func TestEngineLifecycleErrors(t *testing.T) {
	e := NewEngine()
	g := model.NewTaskGraph()
	if err := e.Execute(g); err == nil {
		t.Fatal("expected NotInitialized before Init")
	}
	if err := e.Init(DefaultConfig()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := e.Init(DefaultConfig()); err == nil {
		t.Fatal("expected AlreadyInit on second Init")
	}
	if err := e.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if err := e.Finalize(); err == nil {
		t.Fatal("expected NotInitialized on second Finalize")
	}
}

func TestEngineRejectsInvalidConfig(t *testing.T) {
	e := NewEngine()
	if err := e.Init(Config{NrAic: 0, NrAiv: 0, SchedulerThreads: 1}); err == nil {
		t.Fatal("expected error for zero workers")
	}
	if err := e.Init(Config{NrAic: 1, NrAiv: 0, SchedulerThreads: 0}); err == nil {
		t.Fatal("expected error for zero scheduler threads")
	}
}

func TestEnginePrintStats(t *testing.T) {
	g := model.NewTaskGraph()
	g.AddTask(funcIDFor(core.Cube), core.Cube, "c", 0, nil)
	e := newTestEngine(t, Config{NrAic: 1, NrAiv: 0, SchedulerThreads: 1})
	if err := e.Execute(g); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var buf bytes.Buffer
	e.PrintStats(&buf)
	if buf.Len() == 0 {
		t.Fatal("expected non-empty stats output")
	}
}
