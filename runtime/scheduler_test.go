package runtime

import (
	"testing"

	"github.com/ChaoWao/pto-isa/core"
	"github.com/ChaoWao/pto-isa/model"
)

func TestReadyQueuePushPop(t *testing.T) {
	q := NewReadyQueue(4)
	if _, ok := q.Pop(); ok {
		t.Fatal("empty queue should not pop")
	}
	q.Push(1)
	q.Push(2)
	if q.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", q.Len())
	}
	id, ok := q.Pop()
	if !ok || id != 2 {
		t.Fatalf("Pop() = (%d, %v), want (2, true)", id, ok)
	}
}

func TestComputeAssignmentOneToTwoRatio(t *testing.T) {
	assignment, err := ComputeAssignment(3, 6, 3)
	if err != nil {
		t.Fatalf("ComputeAssignment: %v", err)
	}
	seen := make(map[int]bool)
	for t2, cores := range assignment {
		if len(cores) != 3 {
			t.Fatalf("thread %d owns %d cores, want 3", t2, len(cores))
		}
		for _, c := range cores {
			if seen[c] {
				t.Fatalf("core %d assigned to more than one thread", c)
			}
			seen[c] = true
		}
	}
	if len(seen) != 9 {
		t.Fatalf("covered %d cores, want 9", len(seen))
	}
}

func TestComputeAssignmentContiguousFallback(t *testing.T) {
	assignment, err := ComputeAssignment(5, 5, 3)
	if err != nil {
		t.Fatalf("ComputeAssignment: %v", err)
	}
	total := 0
	for _, cores := range assignment {
		total += len(cores)
	}
	if total != 10 {
		t.Fatalf("covered %d cores, want 10", total)
	}
}

func TestComputeAssignmentRejectsExcessThreads(t *testing.T) {
	if _, err := ComputeAssignment(1, 1, MaxSchedulerThreads+1); err == nil {
		t.Fatal("expected error for excess scheduler thread count")
	}
}

// TestSchedulerThreadPipeline runs the S1 pipeline scenario directly against one
// SchedulerThread and one worker goroutine: three Cube tasks T0->T1->T2 on
// a single core.
func TestSchedulerThreadPipeline(t *testing.T) {
	g := model.NewTaskGraph()
	t0, _ := g.AddTask(1, core.Cube, "t0", 0, nil)
	t1, _ := g.AddTask(1, core.Cube, "t1", 0, nil)
	t2, _ := g.AddTask(1, core.Cube, "t2", 0, nil)
	mustEdge(t, g, t0, t1)
	mustEdge(t, g, t1, t2)

	mem := NewTaskMemory(g)
	cell := NewHandshakeCell(core.Cube)
	st := &SchedulerThread{ID: 0, Cells: []*HandshakeCell{cell}, state: newSchedulerState(1), mem: mem, graph: g}

	reg := newNoopRegistry(t)
	w := NewWorker(0, cell, reg, mem)

	done := make(chan struct{})
	go func() { w.Run(); close(done) }()

	schedDone := make(chan error, 1)
	go func() { schedDone <- st.Run() }()

	select {
	case err := <-schedDone:
		if err != nil {
			t.Fatalf("scheduler error: %v", err)
		}
	case <-timeoutChan(t):
		t.Fatal("scheduler did not finish")
	}
	<-done

	if g.TasksCompleted() != 3 {
		t.Fatalf("tasks_completed = %d, want 3", g.TasksCompleted())
	}
}

func mustEdge(t *testing.T, g *model.TaskGraph, u, v int32) {
	t.Helper()
	if err := g.AddEdge(u, v); err != nil {
		t.Fatalf("AddEdge(%d,%d): %v", u, v, err)
	}
}
