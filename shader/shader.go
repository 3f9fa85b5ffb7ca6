// Package shader holds the WGSL compute kernels of the SSGI pipeline.
//
// The CPU passes in this module are the reference implementation of these
// kernels: same thread-group shape, same inputs and the same math.
// internal/gpu dispatches them on a wgpu device handed to the pipeline with
// WithDevice; Compile emits SPIR-V for hosts that run them on their own
// queues.
package shader

import (
	_ "embed"
	"errors"
	"fmt"

	"github.com/gogpu/naga"
)

// ErrUnknownKernel is returned by Lookup for an unregistered kernel name.
var ErrUnknownKernel = errors.New("shader: unknown kernel")

//go:embed wgsl/hzb_copy.wgsl
var hzbCopyWGSL string

//go:embed wgsl/hzb_build.wgsl
var hzbBuildWGSL string

//go:embed wgsl/ssgi_trace.wgsl
var traceWGSL string

//go:embed wgsl/ssgi_denoise.wgsl
var denoiseWGSL string

//go:embed wgsl/ssgi_temporal.wgsl
var temporalWGSL string

//go:embed wgsl/ssgi_composite.wgsl
var compositeWGSL string

// Kernel describes one compute kernel.
type Kernel struct {
	// Name identifies the kernel, also used as a debug label.
	Name string

	// EntryPoint is the WGSL function decorated with @compute.
	EntryPoint string

	// Workgroup is the thread-group size declared by @workgroup_size.
	Workgroup [3]uint32

	// Source is the WGSL source.
	Source string
}

// The SSGI kernels, in pipeline order.
var (
	HZBCopy   = Kernel{Name: "hzb_copy", EntryPoint: "main", Workgroup: [3]uint32{8, 8, 1}, Source: hzbCopyWGSL}
	HZBBuild  = Kernel{Name: "hzb_build", EntryPoint: "main", Workgroup: [3]uint32{8, 8, 1}, Source: hzbBuildWGSL}
	Trace     = Kernel{Name: "ssgi_trace", EntryPoint: "main", Workgroup: [3]uint32{8, 8, 1}, Source: traceWGSL}
	Denoise   = Kernel{Name: "ssgi_denoise", EntryPoint: "main", Workgroup: [3]uint32{8, 8, 1}, Source: denoiseWGSL}
	Temporal  = Kernel{Name: "ssgi_temporal", EntryPoint: "main", Workgroup: [3]uint32{8, 8, 1}, Source: temporalWGSL}
	Composite = Kernel{Name: "ssgi_composite", EntryPoint: "main", Workgroup: [3]uint32{8, 8, 1}, Source: compositeWGSL}
)

// Kernels returns every kernel in pipeline order.
func Kernels() []Kernel {
	return []Kernel{HZBCopy, HZBBuild, Trace, Denoise, Temporal, Composite}
}

// Lookup returns the kernel with the given name.
func Lookup(name string) (Kernel, error) {
	for _, k := range Kernels() {
		if k.Name == name {
			return k, nil
		}
	}
	return Kernel{}, fmt.Errorf("%w: %q", ErrUnknownKernel, name)
}

// GroupSize returns the square thread-group edge the CPU dispatch uses.
func (k Kernel) GroupSize() int {
	return int(k.Workgroup[0])
}

// Groups returns the group counts covering a width x height dispatch.
func (k Kernel) Groups(width, height int) (x, y, z uint32) {
	gx := (max(width, 0) + int(k.Workgroup[0]) - 1) / int(k.Workgroup[0])
	gy := (max(height, 0) + int(k.Workgroup[1]) - 1) / int(k.Workgroup[1])
	//nolint:gosec // G115: group counts are non-negative
	return uint32(gx), uint32(gy), 1
}

// Compile compiles the kernel to SPIR-V bytes.
func (k Kernel) Compile() ([]byte, error) {
	spirvBytes, err := naga.Compile(k.Source)
	if err != nil {
		return nil, fmt.Errorf("shader %s: compile: %w", k.Name, err)
	}
	return spirvBytes, nil
}

// SPIRV compiles the kernel and returns the little-endian SPIR-V words.
func (k Kernel) SPIRV() ([]uint32, error) {
	spirvBytes, err := k.Compile()
	if err != nil {
		return nil, err
	}

	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words, nil
}
