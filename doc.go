// Package ptoisa implements the A2/A3 task-graph execution engine: the
// distributed scheduler that hands kernels from an AICPU scheduler process
// to a pool of heterogeneous worker cores (Cube/AIC, Vector/AIV) over a
// cache-coherent shared-memory doorbell, while maintaining DAG
// dependencies, per-core-type admission, and a synchronized startup/
// shutdown handshake.
//
// # Architecture Overview
//
// The runtime consists of several components:
//
//   - Task-Graph: a bounded, serializable DAG of tasks with fan-in/fan-out
//     and Cube/Vector core-kind affinity (package model)
//   - Handshake Cell: the cache-line-aligned doorbell mailbox between one
//     scheduler thread and one worker core (package runtime)
//   - Worker Loop: the per-core dispatch loop (package runtime)
//   - Scheduler: per-thread ready-queue draining and dependency propagation
//     (package runtime)
//   - Launch Orchestrator: host-side bring-up, execute, and tear-down
//     (runtime.Engine)
//   - Kernel Registry: func_id -> device binary address table (package
//     kernels)
//
// # Basic Usage
//
//	// Compile a task-graph specification
//	ptoc -v diamond.ptg diamond.ptb
//
//	// Load and execute
//	data, _ := os.ReadFile("diamond.ptb")
//	graph, err := model.Deserialize(data)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	engine := runtime.NewEngine()
//	if err := engine.Init(runtime.DefaultConfig()); err != nil {
//		log.Fatal(err)
//	}
//	defer engine.Finalize()
//
//	// Bind an in-process implementation to every func_id the graph uses;
//	// Execute fails for a task whose func_id has none.
//	noop := func(args []core.TaskArg) error { return nil }
//	engine.RegisterKernelFunc(1, core.Cube, noop)
//	engine.RegisterKernelFunc(2, core.Vector, noop)
//
//	if err := engine.Execute(graph); err != nil {
//		log.Fatal(err)
//	}
//	engine.PrintStats(os.Stdout)
//
// # Package Structure
//
//   - core: Task/CoreKind primitives, static capacity bounds, cache-line
//     alignment helpers
//   - kernels: the func_id -> device-address registry
//   - runtime: handshake cell, worker loop, scheduler, and the launch
//     orchestrator (Engine)
//   - compiler: task-graph DSL parser and binary emitter
//   - model: TaskGraph representation and serialization
//   - cmd: command-line tools (ptoc, ptorun, ptobench)
//
// Per-kernel numerics and the ISA compiler that produces kernel binaries
// are out of scope: this package consumes kernels as opaque binaries
// addressed by func_id.
package ptoisa
