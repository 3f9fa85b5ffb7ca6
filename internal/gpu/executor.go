// Package gpu dispatches the SSGI compute kernels on a host-provided wgpu
// device.
//
// Every pass uploads its inputs, runs one kernel over its extent with the
// group counts of shader.Kernel.Groups, and reads the storage target back
// into the CPU texture the pipeline hands to the next pass. A GPU pass is
// therefore a drop-in replacement for its CPU reference in internal/.
package gpu

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/ssgi/shader"
	"github.com/gogpu/wgpu"
)

var (
	// ErrNoDevice is returned when the provider does not hold a wgpu device.
	ErrNoDevice = errors.New("gpu: provider has no wgpu device")

	// ErrSoftwareAdapter is returned for CPU adapters. The software backend
	// cannot write storage textures, and the CPU passes are faster anyway.
	ErrSoftwareAdapter = errors.New("gpu: software adapter")

	// ErrMissingInput is returned when a pass is given a nil texture.
	ErrMissingInput = errors.New("gpu: missing input")

	// ErrClosed is returned by passes run after Close.
	ErrClosed = errors.New("gpu: executor closed")
)

// Executor runs the SSGI kernels on one device. Compute pipelines are
// compiled on first use and cached until Close. Safe for concurrent use;
// passes are serialized.
type Executor struct {
	mu        sync.Mutex
	device    *wgpu.Device
	queue     *wgpu.Queue
	adapter   string
	sampler   *wgpu.Sampler
	pipelines map[string]*kernelPipeline
	closed    bool
	log       *slog.Logger
}

// kernelPipeline is the compiled state of one kernel.
type kernelPipeline struct {
	module         *wgpu.ShaderModule
	bindLayout     *wgpu.BindGroupLayout
	pipelineLayout *wgpu.PipelineLayout
	pipeline       *wgpu.ComputePipeline
}

func (k *kernelPipeline) release() {
	if k.pipeline != nil {
		k.pipeline.Release()
	}
	if k.pipelineLayout != nil {
		k.pipelineLayout.Release()
	}
	if k.bindLayout != nil {
		k.bindLayout.Release()
	}
	if k.module != nil {
		k.module.Release()
	}
}

// New creates an executor on the provider's device. The device stays owned
// by the host: Close releases only what the executor created.
func New(provider gpucontext.DeviceProvider, log *slog.Logger) (*Executor, error) {
	if provider == nil {
		return nil, ErrNoDevice
	}
	device, ok := provider.Device().(*wgpu.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: got %T", ErrNoDevice, provider.Device())
	}
	info := provider.AdapterInfo()
	if info.Type == gpucontext.AdapterTypeSoftware {
		return nil, fmt.Errorf("%w: %s", ErrSoftwareAdapter, info.Name)
	}
	queue, ok := provider.Queue().(*wgpu.Queue)
	if !ok || queue == nil {
		queue = device.Queue()
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	sampler, err := device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:        "SSGI.HistorySampler",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeNearest,
		LodMaxClamp:  32,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create sampler: %w", err)
	}

	log.Debug("gpu: executor created", "adapter", info.Name, "type", info.Type)
	return &Executor{
		device:    device,
		queue:     queue,
		adapter:   info.Name,
		sampler:   sampler,
		pipelines: make(map[string]*kernelPipeline),
		log:       log,
	}, nil
}

// Adapter returns the adapter name reported by the provider.
func (e *Executor) Adapter() string { return e.adapter }

// Close releases the cached pipelines and the sampler. Safe to call twice.
func (e *Executor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	for name, kp := range e.pipelines {
		kp.release()
		delete(e.pipelines, name)
	}
	if e.sampler != nil {
		e.sampler.Release()
		e.sampler = nil
	}
	e.log.Debug("gpu: executor closed")
}

// slot is the kind of one binding of a kernel, in binding order.
type slot uint8

const (
	slotTexture    slot = iota // texture_2d<f32>, unfilterable
	slotFilterable             // texture_2d<f32> read through the sampler
	slotSampler
	slotStorageR32
	slotStorageRGBA16
	slotUniform
)

// kernelSlots lists the bindings of every kernel, matching shader/wgsl.
var kernelSlots = map[string][]slot{
	shader.HZBCopy.Name:   {slotTexture, slotStorageR32, slotUniform},
	shader.HZBBuild.Name:  {slotTexture, slotStorageR32, slotUniform},
	shader.Trace.Name:     {slotTexture, slotTexture, slotTexture, slotTexture, slotStorageRGBA16, slotUniform},
	shader.Denoise.Name:   {slotTexture, slotTexture, slotTexture, slotStorageRGBA16, slotUniform},
	shader.Temporal.Name:  {slotTexture, slotFilterable, slotSampler, slotTexture, slotStorageRGBA16, slotUniform},
	shader.Composite.Name: {slotTexture, slotTexture, slotStorageRGBA16, slotUniform},
}

func (s slot) layoutEntry(binding uint32) wgpu.BindGroupLayoutEntry {
	entry := wgpu.BindGroupLayoutEntry{Binding: binding, Visibility: wgpu.ShaderStageCompute}
	switch s {
	case slotTexture:
		entry.Texture = &gputypes.TextureBindingLayout{
			SampleType:    gputypes.TextureSampleTypeUnfilterableFloat,
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	case slotFilterable:
		entry.Texture = &gputypes.TextureBindingLayout{
			SampleType:    gputypes.TextureSampleTypeFloat,
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	case slotSampler:
		entry.Sampler = &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering}
	case slotStorageR32:
		entry.StorageTexture = &gputypes.StorageTextureBindingLayout{
			Access:        gputypes.StorageTextureAccessWriteOnly,
			Format:        gputypes.TextureFormatR32Float,
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	case slotStorageRGBA16:
		entry.StorageTexture = &gputypes.StorageTextureBindingLayout{
			Access:        gputypes.StorageTextureAccessWriteOnly,
			Format:        gputypes.TextureFormatRGBA16Float,
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	case slotUniform:
		entry.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}
	}
	return entry
}

// pipelineFor returns the cached pipeline of k, compiling it on first use.
// Callers hold e.mu.
func (e *Executor) pipelineFor(k shader.Kernel) (*kernelPipeline, error) {
	if kp, ok := e.pipelines[k.Name]; ok {
		return kp, nil
	}
	slots, ok := kernelSlots[k.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", shader.ErrUnknownKernel, k.Name)
	}

	kp := &kernelPipeline{}
	var err error
	kp.module, err = e.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{Label: k.Name, WGSL: k.Source})
	if err != nil {
		return nil, fmt.Errorf("gpu: %s: create shader module: %w", k.Name, err)
	}

	entries := make([]wgpu.BindGroupLayoutEntry, len(slots))
	for i, s := range slots {
		entries[i] = s.layoutEntry(uint32(i)) //nolint:gosec // G115: a handful of bindings
	}
	kp.bindLayout, err = e.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   k.Name + "_bgl",
		Entries: entries,
	})
	if err != nil {
		kp.release()
		return nil, fmt.Errorf("gpu: %s: create bind group layout: %w", k.Name, err)
	}

	kp.pipelineLayout, err = e.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            k.Name + "_pl",
		BindGroupLayouts: []*wgpu.BindGroupLayout{kp.bindLayout},
	})
	if err != nil {
		kp.release()
		return nil, fmt.Errorf("gpu: %s: create pipeline layout: %w", k.Name, err)
	}

	kp.pipeline, err = e.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:      k.Name,
		Layout:     kp.pipelineLayout,
		Module:     kp.module,
		EntryPoint: k.EntryPoint,
	})
	if err != nil {
		kp.release()
		return nil, fmt.Errorf("gpu: %s: create compute pipeline: %w", k.Name, err)
	}

	e.pipelines[k.Name] = kp
	e.log.Debug("gpu: pipeline compiled", "kernel", k.Name)
	return kp, nil
}

// dispatch runs k over width x height with the given bindings, then copies
// the storage target out into a mapped staging buffer and returns its rows.
// Callers hold e.mu.
func (e *Executor) dispatch(b *batch, k shader.Kernel, width, height int, entries []wgpu.BindGroupEntry, out *target) ([]byte, error) {
	kp, err := e.pipelineFor(k)
	if err != nil {
		return nil, err
	}

	bg, err := e.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   k.Name + "_bg",
		Layout:  kp.bindLayout,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: %s: create bind group: %w", k.Name, err)
	}
	b.keep(bg)

	staging, err := b.staging(out)
	if err != nil {
		return nil, fmt.Errorf("gpu: %s: %w", k.Name, err)
	}

	encoder, err := e.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: k.Name})
	if err != nil {
		return nil, fmt.Errorf("gpu: %s: create encoder: %w", k.Name, err)
	}
	pass, err := encoder.BeginComputePass(&wgpu.ComputePassDescriptor{Label: k.Name})
	if err != nil {
		encoder.DiscardEncoding()
		return nil, fmt.Errorf("gpu: %s: begin compute pass: %w", k.Name, err)
	}
	gx, gy, gz := k.Groups(width, height)
	pass.SetPipeline(kp.pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.Dispatch(gx, gy, gz)
	if err := pass.End(); err != nil {
		encoder.DiscardEncoding()
		return nil, fmt.Errorf("gpu: %s: end compute pass: %w", k.Name, err)
	}
	encoder.CopyTextureToBuffer(out.tex, staging, []wgpu.BufferTextureCopy{{
		BufferLayout: wgpu.ImageDataLayout{
			BytesPerRow:  out.pitch,
			RowsPerImage: out.height,
		},
		TextureBase: wgpu.ImageCopyTexture{Texture: out.tex, Aspect: gputypes.TextureAspectAll},
		Size:        wgpu.Extent3D{Width: out.width, Height: out.height, DepthOrArrayLayers: 1},
	}})
	cmd, err := encoder.Finish()
	if err != nil {
		return nil, fmt.Errorf("gpu: %s: finish encoder: %w", k.Name, err)
	}
	if _, err := e.queue.Submit(cmd); err != nil {
		return nil, fmt.Errorf("gpu: %s: submit: %w", k.Name, err)
	}

	rows, err := readStaging(staging, out.size())
	if err != nil {
		return nil, fmt.Errorf("gpu: %s: %w", k.Name, err)
	}
	e.log.Debug("gpu: dispatch",
		"kernel", k.Name,
		"size", fmt.Sprintf("%dx%d", width, height),
		"groups", fmt.Sprintf("%dx%d", gx, gy))
	return rows, nil
}
