package runtime

import (
	"errors"
	"testing"
	"time"

	"github.com/ChaoWao/pto-isa/core"
	"github.com/ChaoWao/pto-isa/kernels"
)

type fakeResolver struct {
	tasks map[uint64]*core.Task
}

func (f fakeResolver) Resolve(addr uint64) (*core.Task, error) {
	t, ok := f.tasks[addr]
	if !ok {
		return nil, errors.New("unknown address")
	}
	return t, nil
}

func TestWorkerDispatchesRegisteredKernel(t *testing.T) {
	tsk, err := core.NewTask(1, core.Cube, "k", 0, nil)
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}
	resolver := fakeResolver{tasks: map[uint64]*core.Task{100: tsk}}

	reg := kernels.NewRegistry()
	ran := make(chan struct{}, 1)
	if err := reg.RegisterFunc(1, core.Cube, func(args []core.TaskArg) error {
		ran <- struct{}{}
		return nil
	}); err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}

	cell := NewHandshakeCell(core.Cube)
	w := NewWorker(0, cell, reg, resolver)

	done := make(chan struct{})
	go func() {
		w.Run()
		close(done)
	}()

	cell.SchedulerSignalReady()
	waitFor(t, func() bool { return cell.IsWorkerAcked() })

	cell.Dispatch(100)
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("kernel never ran")
	}
	waitFor(t, func() bool { _, busy := cell.Poll(); return !busy })

	cell.RequestQuit()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit after quit request")
	}
	if w.LastErr != nil {
		t.Fatalf("unexpected worker error: %v", w.LastErr)
	}
}

func TestWorkerRecordsMissingKernelError(t *testing.T) {
	tsk, _ := core.NewTask(9, core.Vector, "missing", 0, nil)
	resolver := fakeResolver{tasks: map[uint64]*core.Task{200: tsk}}
	reg := kernels.NewRegistry()
	cell := NewHandshakeCell(core.Vector)
	w := NewWorker(0, cell, reg, resolver)

	go w.Run()
	cell.SchedulerSignalReady()
	waitFor(t, func() bool { return cell.IsWorkerAcked() })

	cell.Dispatch(200)
	waitFor(t, func() bool { _, busy := cell.Poll(); return !busy })
	cell.RequestQuit()

	waitFor(t, func() bool { return w.LastErr != nil })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition never became true")
		}
		time.Sleep(time.Millisecond)
	}
}
