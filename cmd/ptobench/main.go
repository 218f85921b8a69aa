package main

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/ChaoWao/pto-isa/core"
	"github.com/ChaoWao/pto-isa/kernels"
	"github.com/ChaoWao/pto-isa/model"
	ptoruntime "github.com/ChaoWao/pto-isa/runtime"
)

// scenario builds one of the runtime's testable scenarios (S1-S6).
type scenario struct {
	name string
	cfg  ptoruntime.Config
	runs int
	build func() *model.TaskGraph
}

func main() {
	fmt.Printf("PTO-ISA Scheduler Benchmark\n")
	fmt.Printf("===========================\n")
	fmt.Printf("Go Version: %s\n", runtime.Version())
	fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("CPUs: %d\n", runtime.NumCPU())
	fmt.Printf("Host kernel features: %s\n", kernels.Features())
	fmt.Printf("\n")

	for _, s := range scenarios() {
		runScenario(s)
	}
}

func scenarios() []scenario {
	return []scenario{
		{"S1 pipeline", ptoruntime.Config{NrAic: 1, NrAiv: 0, SchedulerThreads: 1}, 1, buildPipeline},
		{"S2 diamond", ptoruntime.Config{NrAic: 1, NrAiv: 2, SchedulerThreads: 1}, 2, buildDiamond},
		{"S3 wide fan-out", ptoruntime.Config{NrAic: 1, NrAiv: 2, SchedulerThreads: 1}, 1, buildWideFanout},
		{"S4 kind starvation guard", ptoruntime.Config{NrAic: 1, NrAiv: 2, SchedulerThreads: 1}, 1, buildStarvation},
		{"S5 multi-scheduler balance", ptoruntime.Config{NrAic: 3, NrAiv: 6, SchedulerThreads: 3}, 1, buildMixed},
	}
}

func runScenario(s scenario) {
	engine := ptoruntime.NewEngine()
	if err := engine.Init(s.cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%s: init failed: %v\n", s.name, err)
		return
	}
	defer engine.Finalize()
	registerNoopKernels(engine)

	graph := s.build()
	start := time.Now()
	for i := 0; i < s.runs; i++ {
		if err := engine.Execute(graph); err != nil {
			fmt.Fprintf(os.Stderr, "%s: execute failed: %v\n", s.name, err)
			return
		}
	}
	elapsed := time.Since(start)

	stats := engine.GetStats()
	fmt.Printf("%-28s tasks=%-4d completed=%-4d runs=%d wall=%v\n",
		s.name, stats.TasksScheduled, stats.TasksCompleted, s.runs, elapsed)
}

func registerNoopKernels(engine *ptoruntime.Engine) {
	engine.RegisterKernelFunc(1, core.Cube, func(args []core.TaskArg) error { return nil })
	engine.RegisterKernelFunc(2, core.Vector, func(args []core.TaskArg) error { return nil })
}

func funcIDFor(kind core.CoreKind) int32 {
	if kind == core.Vector {
		return 2
	}
	return 1
}

// buildPipeline is scenario S1: 3 Cube tasks T0->T1->T2.
func buildPipeline() *model.TaskGraph {
	g := model.NewTaskGraph()
	t0, _ := g.AddTask(funcIDFor(core.Cube), core.Cube, "t0", 0, nil)
	t1, _ := g.AddTask(funcIDFor(core.Cube), core.Cube, "t1", 0, nil)
	t2, _ := g.AddTask(funcIDFor(core.Cube), core.Cube, "t2", 0, nil)
	g.AddEdge(t0, t1)
	g.AddEdge(t1, t2)
	return g
}

// buildDiamond is scenario S2: T0(Cube) -> T1(Vec), T0 -> T2(Vec),
// {T1,T2} -> T3(Cube).
func buildDiamond() *model.TaskGraph {
	g := model.NewTaskGraph()
	t0, _ := g.AddTask(funcIDFor(core.Cube), core.Cube, "t0", 0, nil)
	t1, _ := g.AddTask(funcIDFor(core.Vector), core.Vector, "t1", 0, nil)
	t2, _ := g.AddTask(funcIDFor(core.Vector), core.Vector, "t2", 0, nil)
	t3, _ := g.AddTask(funcIDFor(core.Cube), core.Cube, "t3", 0, nil)
	g.AddEdge(t0, t1)
	g.AddEdge(t0, t2)
	g.AddEdge(t1, t3)
	g.AddEdge(t2, t3)
	return g
}

// buildWideFanout is scenario S3: T0(Cube) -> 8 Vec tasks.
func buildWideFanout() *model.TaskGraph {
	g := model.NewTaskGraph()
	t0, _ := g.AddTask(funcIDFor(core.Cube), core.Cube, "t0", 0, nil)
	for i := 0; i < 8; i++ {
		v, _ := g.AddTask(funcIDFor(core.Vector), core.Vector, "v", 0, nil)
		g.AddEdge(t0, v)
	}
	return g
}

// buildStarvation is scenario S4: 10 Cube + 10 Vector tasks, no edges.
func buildStarvation() *model.TaskGraph {
	g := model.NewTaskGraph()
	for i := 0; i < 10; i++ {
		g.AddTask(funcIDFor(core.Cube), core.Cube, "c", 0, nil)
	}
	for i := 0; i < 10; i++ {
		g.AddTask(funcIDFor(core.Vector), core.Vector, "v", 0, nil)
	}
	return g
}

// buildMixed is scenario S5: 60 mixed-kind tasks, no edges.
func buildMixed() *model.TaskGraph {
	g := model.NewTaskGraph()
	for i := 0; i < 30; i++ {
		g.AddTask(funcIDFor(core.Cube), core.Cube, "c", 0, nil)
	}
	for i := 0; i < 30; i++ {
		g.AddTask(funcIDFor(core.Vector), core.Vector, "v", 0, nil)
	}
	return g
}
