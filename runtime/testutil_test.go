package runtime

import (
	"testing"
	"time"

	"github.com/ChaoWao/pto-isa/core"
	"github.com/ChaoWao/pto-isa/kernels"
)

// newNoopRegistry returns a registry where func_id 1 is bound to a kernel
// that does nothing but succeed, enough to drive a worker loop in tests
// that only care about handshake and scheduling behavior.
func newNoopRegistry(t *testing.T) *kernels.Registry {
	t.Helper()
	r := kernels.NewRegistry()
	if err := r.RegisterFunc(1, core.Cube, func(args []core.TaskArg) error { return nil }); err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}
	if err := r.RegisterFunc(2, core.Vector, func(args []core.TaskArg) error { return nil }); err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}
	return r
}

func timeoutChan(t *testing.T) <-chan time.Time {
	t.Helper()
	return time.After(5 * time.Second)
}
