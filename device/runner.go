// Package device wraps gocca with the plumbing the stencil solvers need:
// named float64 arrays in device memory and kernels compiled from OKL
// source with a shared preamble. One Runner serves one solver instance and
// owns its resources for the instance's lifetime.
package device

import (
	"fmt"
	"unsafe"

	"github.com/notargets/gocca"
)

// Block is the @inner width the generated kernels tile their index space
// with.
const Block = 256

// Runner owns device memory and compiled kernels.
type Runner struct {
	Device  *gocca.OCCADevice
	Kernels map[string]*gocca.OCCAKernel
	Memory  map[string]*gocca.OCCAMemory
	counts  map[string]int // element counts for copy bounds checks
}

// NewRunner creates a Runner on the given device. A nil device is a
// programmer error and panics.
func NewRunner(dev *gocca.OCCADevice) *Runner {
	if dev == nil {
		panic("device: nil OCCA device")
	}
	return &Runner{
		Device:  dev,
		Kernels: make(map[string]*gocca.OCCAKernel),
		Memory:  make(map[string]*gocca.OCCAMemory),
		counts:  make(map[string]int),
	}
}

// Preamble returns the type definitions prepended to every kernel source.
func Preamble() string {
	return fmt.Sprintf("typedef double real_t;\ntypedef long int_t;\n#define BLOCK %d\n", Block)
}

// AllocArray allocates an n-element float64 array on the device, zeroed.
func (r *Runner) AllocArray(name string, n int) error {
	if _, exists := r.Memory[name]; exists {
		return fmt.Errorf("device: array %s already allocated", name)
	}
	if n < 1 {
		return fmt.Errorf("device: array %s has invalid size %d", name, n)
	}
	zero := make([]float64, n)
	r.Memory[name] = r.Device.Malloc(int64(n*8), unsafe.Pointer(&zero[0]), nil)
	r.counts[name] = n
	return nil
}

// BindArray allocates a device array initialized from host data. The host
// slice is copied, not retained.
func (r *Runner) BindArray(name string, host []float64) error {
	if _, exists := r.Memory[name]; exists {
		return fmt.Errorf("device: array %s already allocated", name)
	}
	if len(host) == 0 {
		return fmt.Errorf("device: array %s bound to empty host data", name)
	}
	r.Memory[name] = r.Device.Malloc(int64(len(host)*8), unsafe.Pointer(&host[0]), nil)
	r.counts[name] = len(host)
	return nil
}

// CopyToDevice overwrites a device array from host data.
func (r *Runner) CopyToDevice(name string, host []float64) error {
	mem, n, err := r.lookup(name, len(host))
	if err != nil {
		return err
	}
	mem.CopyFrom(unsafe.Pointer(&host[0]), int64(n*8))
	return nil
}

// CopyFromDevice reads a device array back into host data.
func (r *Runner) CopyFromDevice(name string, host []float64) error {
	mem, n, err := r.lookup(name, len(host))
	if err != nil {
		return err
	}
	mem.CopyTo(unsafe.Pointer(&host[0]), int64(n*8))
	return nil
}

func (r *Runner) lookup(name string, hostLen int) (*gocca.OCCAMemory, int, error) {
	mem, exists := r.Memory[name]
	if !exists {
		return nil, 0, fmt.Errorf("device: array %s not allocated", name)
	}
	if n := r.counts[name]; n != hostLen {
		return nil, 0, fmt.Errorf("device: array %s has %d elements, host buffer has %d", name, n, hostLen)
	}
	return mem, r.counts[name], nil
}

// BuildKernel compiles OKL source (with the preamble prepended) and
// registers it under name.
func (r *Runner) BuildKernel(source, name string) (*gocca.OCCAKernel, error) {
	full := Preamble() + "\n" + source

	var kernel *gocca.OCCAKernel
	var err error
	if r.Device.Mode() == "OpenMP" {
		// OCCA does not pass its default -O3 flag to OpenMP builds
		props := gocca.JsonParse(`{"compiler_flags": "-O3"}`)
		defer props.Free()
		kernel, err = r.Device.BuildKernelFromString(full, name, props)
	} else {
		kernel, err = r.Device.BuildKernelFromString(full, name, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("device: failed to build kernel %s: %w", name, err)
	}
	if kernel == nil {
		return nil, fmt.Errorf("device: kernel build returned nil for %s", name)
	}
	r.Kernels[name] = kernel
	return kernel, nil
}

// ExecuteKernel launches a compiled kernel and blocks until the device
// finishes, so every write of this pass is visible before the next pass
// starts. String arguments resolve to device arrays by name; all other
// values pass through as scalars.
func (r *Runner) ExecuteKernel(name string, args ...interface{}) error {
	kernel, exists := r.Kernels[name]
	if !exists {
		return fmt.Errorf("device: kernel %s not built", name)
	}
	resolved := make([]interface{}, len(args))
	for i, a := range args {
		if arrName, ok := a.(string); ok {
			mem, exists := r.Memory[arrName]
			if !exists {
				return fmt.Errorf("device: array %s not allocated", arrName)
			}
			resolved[i] = mem
			continue
		}
		resolved[i] = a
	}
	if err := kernel.RunWithArgs(resolved...); err != nil {
		return fmt.Errorf("device: kernel %s failed: %w", name, err)
	}
	r.Device.Finish()
	return nil
}

// Free releases all kernels and device memory.
func (r *Runner) Free() {
	for _, kernel := range r.Kernels {
		kernel.Free()
	}
	for _, mem := range r.Memory {
		mem.Free()
	}
}
