// Package kernels implements the kernel registry: the table mapping
// func_id to the device address of a compiled kernel binary, loaded once
// per runtime via register_kernel. Per-kernel numerics are explicitly out
// of scope, since the core is indifferent to what a kernel computes, so
// binaries are consumed as opaque, addressed blobs. Registry additionally
// supports registering an in-process KernelFn, a simulation seam this Go
// runtime needs in place of real accelerator hardware to execute a
// dispatched task at all.
package kernels

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/cpu"

	"github.com/ChaoWao/pto-isa/core"
)

// KernelFn is the in-process stand-in for a dispatched kernel invocation:
// given a task's bound arguments, it runs and reports success or failure.
// Argument-pointer dereferencing is the kernel's own concern; the registry
// and worker never interpret TaskArg beyond handing it over.
type KernelFn func(args []core.TaskArg) error

// entry is one registry slot: the device address assigned at registration
// time, the core-kind affinity the binary was compiled for, and (for this
// host-only simulation) an optional in-process implementation.
type entry struct {
	addr uint64
	kind core.CoreKind
	size int64
	fn   KernelFn
}

// Registry is the func_id -> device-binary-address table. It is built
// once at init, before any worker goroutine starts, and read thereafter;
// registration takes the write lock and every lookup, including those made
// by workers during execute, takes the read lock.
type Registry struct {
	mu      sync.RWMutex
	table   [core.MaxFuncID]*entry
	nextOff uint64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register is the Host API's register_kernel(func_id, binary_path,
// core_kind): it opens the binary, assigns it a device address in the
// simulated kernel-binary region, and records its size. A missing or
// unreadable binary is BinaryLoadFailed.
func (r *Registry) Register(funcID int32, binaryPath string, kind core.CoreKind) error {
	if funcID < 0 || int(funcID) >= core.MaxFuncID {
		return fmt.Errorf("kernels: func_id %d out of range", funcID)
	}
	f, err := os.Open(binaryPath)
	if err != nil {
		return fmt.Errorf("kernels: load %q: %w", binaryPath, err)
	}
	info, err := f.Stat()
	f.Close()
	if err != nil {
		return fmt.Errorf("kernels: load %q: %w", binaryPath, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	addr := core.KernelBase + r.nextOff
	r.nextOff += uint64(core.AlignedSize(uintptr(info.Size())))
	r.table[funcID] = &entry{addr: addr, kind: kind, size: info.Size()}
	return nil
}

// RegisterFunc binds an in-process KernelFn to func_id, for simulation and
// testing in the absence of real accelerator hardware. It is additive to
// Register: a func_id may carry both a device address (for launch-descriptor
// fidelity) and a host-side implementation used to actually run it.
func (r *Registry) RegisterFunc(funcID int32, kind core.CoreKind, fn KernelFn) error {
	if funcID < 0 || int(funcID) >= core.MaxFuncID {
		return fmt.Errorf("kernels: func_id %d out of range", funcID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.table[funcID]
	if e == nil {
		addr := core.KernelBase + r.nextOff
		r.nextOff += core.CacheLineSize
		e = &entry{addr: addr, kind: kind}
		r.table[funcID] = e
	}
	e.fn = fn
	return nil
}

// LoadDirectory registers every file in dir as a kernel, keyed by the
// caller-supplied func_id assignment function. It mirrors the CLI's
// kernel-directory startup option.
func (r *Registry) LoadDirectory(dir string, assign func(name string) (funcID int32, kind core.CoreKind, ok bool)) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("kernels: read directory %q: %w", dir, err)
	}
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		funcID, kind, ok := assign(de.Name())
		if !ok {
			continue
		}
		if err := r.Register(funcID, dir+string(os.PathSeparator)+de.Name(), kind); err != nil {
			return err
		}
	}
	return nil
}

// Address returns the device address registered for func_id.
func (r *Registry) Address(funcID int32) (uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if funcID < 0 || int(funcID) >= core.MaxFuncID {
		return 0, false
	}
	e := r.table[funcID]
	if e == nil {
		return 0, false
	}
	return e.addr, true
}

// Lookup returns the in-process simulation function for func_id, or nil if
// none was registered with RegisterFunc.
func (r *Registry) Lookup(funcID int32) KernelFn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if funcID < 0 || int(funcID) >= core.MaxFuncID {
		return nil
	}
	e := r.table[funcID]
	if e == nil {
		return nil
	}
	return e.fn
}

// KindOf returns the core-kind affinity a func_id was registered under.
func (r *Registry) KindOf(funcID int32) (core.CoreKind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if funcID < 0 || int(funcID) >= core.MaxFuncID {
		return 0, false
	}
	e := r.table[funcID]
	if e == nil {
		return 0, false
	}
	return e.kind, true
}

// Features reports the host CPU's vector-instruction capabilities. The
// original runtime's worker kernels are hand-tuned per target (NEON on
// ARM64 hosts, AVX2/AVX-512 on x86 hosts that run the compiler and the
// development-mode simulation); this is surfaced through print_stats-style
// diagnostics so a launch log can record which capability class built the
// kernel binaries being loaded, without this package depending on any
// particular kernel's code.
func Features() string {
	switch {
	case cpu.ARM64.HasASIMD:
		return "arm64/asimd"
	case cpu.X86.HasAVX512F:
		return "x86/avx512f"
	case cpu.X86.HasAVX2:
		return "x86/avx2"
	case cpu.X86.HasSSE41:
		return "x86/sse4.1"
	default:
		return "generic"
	}
}
