package model

import (
	"testing"

	"github.com/ChaoWao/pto-isa/core"
)

func buildDiamond(t *testing.T) *TaskGraph {
	t.Helper()
	g := NewTaskGraph()
	a, err := g.AddTask(1, core.Cube, "a", 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := g.AddTask(2, core.Vector, "b", 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	c, err := g.AddTask(3, core.Vector, "c", 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	d, err := g.AddTask(4, core.Cube, "d", 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range [][2]int32{{a, b}, {a, c}, {b, d}, {c, d}} {
		if err := g.AddEdge(e[0], e[1]); err != nil {
			t.Fatal(err)
		}
	}
	return g
}

func TestAddTaskCapacity(t *testing.T) {
	t.Parallel()
	g := NewTaskGraph()
	for i := 0; i < core.MaxTasks; i++ {
		if _, err := g.AddTask(int32(i), core.Cube, "t", 0, nil); err != nil {
			t.Fatalf("unexpected error at task %d: %v", i, err)
		}
	}
	if _, err := g.AddTask(0, core.Cube, "overflow", 0, nil); err == nil {
		t.Error("expected capacity overflow error")
	}
}

func TestInitialReady(t *testing.T) {
	t.Parallel()
	g := buildDiamond(t)
	ready := g.InitialReady()
	if len(ready) != 1 || ready[0] != 0 {
		t.Errorf("InitialReady() = %v, want [0]", ready)
	}
}

func TestAddEdgeFaninArithmetic(t *testing.T) {
	t.Parallel()
	g := buildDiamond(t)
	d, err := g.Get(3)
	if err != nil {
		t.Fatal(err)
	}
	if d.Fanin.Load() != 2 {
		t.Errorf("D.fanin = %d, want 2", d.Fanin.Load())
	}
}

func TestValidateRejectsCycle(t *testing.T) {
	t.Parallel()
	g := NewTaskGraph()
	a, _ := g.AddTask(1, core.Cube, "a", 0, nil)
	b, _ := g.AddTask(2, core.Cube, "b", 0, nil)
	if err := g.AddEdge(a, b); err != nil {
		t.Fatal(err)
	}
	if err := g.AddEdge(b, a); err != nil {
		t.Fatal(err)
	}
	if err := g.Validate(); err == nil {
		t.Error("expected cycle to be rejected")
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	t.Parallel()
	g := buildDiamond(t)

	data, err := g.Serialize()
	if err != nil {
		t.Fatalf("Serialize() error: %v", err)
	}

	g2, err := Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize() error: %v", err)
	}

	data2, err := g2.Serialize()
	if err != nil {
		t.Fatalf("re-Serialize() error: %v", err)
	}

	if len(data) != len(data2) {
		t.Fatalf("round-trip size mismatch: %d vs %d", len(data), len(data2))
	}
	for i := range data {
		if data[i] != data2[i] {
			t.Fatalf("round-trip byte mismatch at offset %d", i)
		}
	}

	if g2.NumTasks() != g.NumTasks() {
		t.Errorf("NumTasks mismatch: %d vs %d", g2.NumTasks(), g.NumTasks())
	}
	for i := int32(0); i < g.NumTasks(); i++ {
		want, _ := g.Get(i)
		got, err := g2.Get(i)
		if err != nil {
			t.Fatal(err)
		}
		if got.FuncNameString() != want.FuncNameString() || got.CoreKind != want.CoreKind {
			t.Errorf("task %d mismatch: got %+v, want %+v", i, got, want)
		}
	}
}

func TestDeserializeRejectsBadMagic(t *testing.T) {
	t.Parallel()
	if _, err := Deserialize([]byte{0, 1, 2, 3}); err == nil {
		t.Error("expected error for malformed header")
	}
}

func TestResetCompleted(t *testing.T) {
	t.Parallel()
	g := buildDiamond(t)
	g.IncrementCompleted()
	g.IncrementCompleted()
	if g.TasksCompleted() != 2 {
		t.Fatalf("TasksCompleted() = %d, want 2", g.TasksCompleted())
	}
	g.ResetCompleted()
	if g.TasksCompleted() != 0 {
		t.Errorf("TasksCompleted() after reset = %d, want 0", g.TasksCompleted())
	}
}
