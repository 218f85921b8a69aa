package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/ChaoWao/pto-isa/core"
	"github.com/ChaoWao/pto-isa/kernels"
	"github.com/ChaoWao/pto-isa/model"
	ptoruntime "github.com/ChaoWao/pto-isa/runtime"
)

func main() {
	var (
		nrAic      = flag.Int("aic", 24, "Number of Cube (AIC) worker cores")
		nrAiv      = flag.Int("aiv", 48, "Number of Vector (AIV) worker cores")
		schedulers = flag.Int("schedulers", 3, "Number of scheduler threads")
		kernelDir  = flag.String("kernels", "", "Directory of kernel binaries to register")
		verbose    = flag.Bool("verbose", false, "Enable verbose output")
		version    = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *version {
		fmt.Println("ptorun - PTO-ISA task-graph runtime v1.0.0")
		return
	}

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <graph.ptb>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		log.Fatalf("failed to read graph: %v", err)
	}
	graph, err := model.Deserialize(data)
	if err != nil {
		log.Fatalf("failed to load graph: %v", err)
	}

	if *verbose {
		fmt.Printf("Loaded graph with %d tasks\n", graph.NumTasks())
		fmt.Printf("Host CPU features: %s\n", kernels.Features())
	}

	engine := ptoruntime.NewEngine()
	cfg := ptoruntime.Config{NrAic: *nrAic, NrAiv: *nrAiv, SchedulerThreads: *schedulers}
	if err := engine.Init(cfg); err != nil {
		log.Fatalf("init failed: %v", err)
	}
	defer engine.Finalize()

	if *kernelDir != "" {
		if err := registerKernelDirectory(engine, *kernelDir); err != nil {
			log.Fatalf("failed to register kernels: %v", err)
		}
	}
	if err := registerDefaultKernels(engine, graph); err != nil {
		log.Fatalf("failed to register default kernels: %v", err)
	}

	if err := engine.Execute(graph); err != nil {
		log.Fatalf("execution failed: %v", err)
	}

	engine.PrintStats(os.Stdout)
}

// registerKernelDirectory loads every file in dir as a kernel binary,
// assigning func_id by filename convention: "<kind>_<func_id>.bin".
func registerKernelDirectory(engine *ptoruntime.Engine, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		var funcID int32
		var kind core.CoreKind
		n, _ := fmt.Sscanf(de.Name(), "cube_%d.bin", &funcID)
		if n == 1 {
			kind = core.Cube
		} else if n, _ = fmt.Sscanf(de.Name(), "vector_%d.bin", &funcID); n == 1 {
			kind = core.Vector
		} else {
			continue
		}
		if err := engine.RegisterKernel(funcID, dir+string(os.PathSeparator)+de.Name(), kind); err != nil {
			return err
		}
	}
	return nil
}

// registerDefaultKernels binds every func_id referenced by graph to a no-op
// simulation, so a graph can run end to end without real accelerator
// hardware even when -kernels only supplied binary addresses, or wasn't
// given at all. It never overrides an address a directory load already
// assigned; RegisterKernelFunc only adds the in-process implementation.
func registerDefaultKernels(engine *ptoruntime.Engine, graph *model.TaskGraph) error {
	seen := make(map[int32]bool)
	for i := int32(0); i < graph.NumTasks(); i++ {
		t, err := graph.Get(i)
		if err != nil {
			return err
		}
		if seen[t.FuncID] {
			continue
		}
		seen[t.FuncID] = true
		if err := engine.RegisterKernelFunc(t.FuncID, t.CoreKind, noopKernel); err != nil {
			return err
		}
	}
	return nil
}

// noopKernel is ptorun's simulation default: since this runtime drives no
// real accelerator, every dispatched kernel simply reports success.
func noopKernel(args []core.TaskArg) error { return nil }
