package gpu

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/ssgi/texture"
	"github.com/gogpu/wgpu"
	"github.com/mrjoshuak/go-openexr/half"
)

// copyRowAlignment is the BytesPerRow alignment of texture-to-buffer copies.
const copyRowAlignment = 256

// mapTimeout bounds the wait for a readback.
const mapTimeout = 5 * time.Second

// releaser is any wgpu object owned by a batch.
type releaser interface{ Release() }

// batch owns the transient resources of one pass. release frees them in
// reverse creation order.
type batch struct {
	device *wgpu.Device
	queue  *wgpu.Queue
	owned  []releaser
}

func (e *Executor) newBatch() *batch {
	return &batch{device: e.device, queue: e.queue}
}

func (b *batch) keep(r releaser) { b.owned = append(b.owned, r) }

func (b *batch) release() {
	for i := len(b.owned) - 1; i >= 0; i-- {
		b.owned[i].Release()
	}
	b.owned = nil
}

// sampled uploads levels as a sampled texture with one mip per entry and
// returns a view of the whole chain. data[i] holds mip i in tight rows.
func (b *batch) sampled(label string, width, height int, format gputypes.TextureFormat, bpp int, data [][]byte) (*wgpu.TextureView, error) {
	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         label,
		Size:          extent(width, height),
		MipLevelCount: uint32(len(data)), //nolint:gosec // G115: mip counts are small
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        format,
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", label, err)
	}
	b.keep(tex)

	for level, bytes := range data {
		lw, lh := texture.MipSize(width, height, level)
		size := extent(lw, lh)
		//nolint:gosec // G115: mip levels and row sizes fit in uint32
		dst := &wgpu.ImageCopyTexture{Texture: tex, MipLevel: uint32(level), Aspect: gputypes.TextureAspectAll}
		//nolint:gosec // G115
		layout := &wgpu.ImageDataLayout{BytesPerRow: uint32(lw * bpp), RowsPerImage: uint32(lh)}
		if err := b.queue.WriteTexture(dst, bytes, layout, &size); err != nil {
			return nil, fmt.Errorf("upload %s level %d: %w", label, level, err)
		}
	}

	view, err := b.device.CreateTextureView(tex, &wgpu.TextureViewDescriptor{
		Label:           label,
		Format:          format,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   uint32(len(data)), //nolint:gosec // G115
		ArrayLayerCount: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("view %s: %w", label, err)
	}
	b.keep(view)
	return view, nil
}

// rgba uploads t as an unfilterable RGBA32Float texture. A nil t binds a
// single black texel.
func (b *batch) rgba(label string, t *texture.RGBA) (*wgpu.TextureView, error) {
	if t == nil {
		return b.sampled(label, 1, 1, gputypes.TextureFormatRGBA32Float, 16, [][]byte{make([]byte, 16)})
	}
	return b.sampled(label, t.Width(), t.Height(), gputypes.TextureFormatRGBA32Float, 16, [][]byte{encodeRGBA32(t)})
}

// filterable uploads t as RGBA16Float, which the history sampler may filter.
func (b *batch) filterable(label string, t *texture.RGBA) (*wgpu.TextureView, error) {
	return b.sampled(label, t.Width(), t.Height(), gputypes.TextureFormatRGBA16Float, 8, [][]byte{encodeRGBA16(t)})
}

// scalar uploads count levels of s starting at base as an R32Float chain.
func (b *batch) scalar(label string, s *texture.Scalar, base, count int) (*wgpu.TextureView, error) {
	data := make([][]byte, count)
	for i := range data {
		data[i] = encodeR32(s.Level(base + i))
	}
	w, h := s.LevelSize(base)
	return b.sampled(label, w, h, gputypes.TextureFormatR32Float, 4, data)
}

// uniform uploads a parameter block.
func (b *batch) uniform(label string, data []byte) (*wgpu.Buffer, uint64, error) {
	size := uint64(len(data))
	buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("create %s: %w", label, err)
	}
	b.keep(buf)
	if err := b.queue.WriteBuffer(buf, 0, data); err != nil {
		return nil, 0, fmt.Errorf("upload %s: %w", label, err)
	}
	return buf, size, nil
}

// target is a storage texture a kernel writes and the host reads back.
type target struct {
	tex    *wgpu.Texture
	view   *wgpu.TextureView
	width  uint32
	height uint32
	bpp    uint32
	pitch  uint32
}

func (t *target) size() uint64 { return uint64(t.pitch) * uint64(t.height) }

// storage creates a width x height storage target of the given format.
func (b *batch) storage(label string, width, height int, format gputypes.TextureFormat) (*target, error) {
	bpp := 8
	if format == gputypes.TextureFormatR32Float {
		bpp = 4
	}
	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         label,
		Size:          extent(width, height),
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        format,
		Usage:         wgpu.TextureUsageStorageBinding | wgpu.TextureUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", label, err)
	}
	b.keep(tex)
	view, err := b.device.CreateTextureView(tex, &wgpu.TextureViewDescriptor{
		Label:           label,
		Format:          format,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   1,
		ArrayLayerCount: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("view %s: %w", label, err)
	}
	b.keep(view)

	//nolint:gosec // G115: texture sizes fit in uint32
	return &target{
		tex:    tex,
		view:   view,
		width:  uint32(width),
		height: uint32(height),
		bpp:    uint32(bpp),
		pitch:  alignRow(uint32(width * bpp)),
	}, nil
}

// staging creates the mappable buffer a target is copied into.
func (b *batch) staging(t *target) (*wgpu.Buffer, error) {
	buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "SSGI.Readback",
		Size:  t.size(),
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create staging buffer: %w", err)
	}
	b.keep(buf)
	return buf, nil
}

// readStaging maps buf and copies size bytes out of it.
func readStaging(buf *wgpu.Buffer, size uint64) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), mapTimeout)
	defer cancel()
	if err := buf.Map(ctx, wgpu.MapModeRead, 0, size); err != nil {
		return nil, fmt.Errorf("map staging buffer: %w", err)
	}
	rng, err := buf.MappedRange(0, size)
	if err != nil {
		_ = buf.Unmap()
		return nil, fmt.Errorf("staging mapped range: %w", err)
	}
	out := make([]byte, size)
	copy(out, rng.Bytes())
	if err := buf.Unmap(); err != nil {
		return nil, fmt.Errorf("unmap staging buffer: %w", err)
	}
	return out, nil
}

func alignRow(n uint32) uint32 {
	return (n + copyRowAlignment - 1) / copyRowAlignment * copyRowAlignment
}

func extent(width, height int) wgpu.Extent3D {
	//nolint:gosec // G115: texture sizes fit in uint32
	return wgpu.Extent3D{Width: uint32(width), Height: uint32(height), DepthOrArrayLayers: 1}
}

func encodeRGBA32(t *texture.RGBA) []byte {
	w, h := t.Width(), t.Height()
	out := make([]byte, w*h*16)
	for y := range h {
		for x := range w {
			v := t.Load(x, y)
			i := (y*w + x) * 16
			for c := range 4 {
				binary.LittleEndian.PutUint32(out[i+c*4:], math.Float32bits(v[c]))
			}
		}
	}
	return out
}

func encodeRGBA16(t *texture.RGBA) []byte {
	w, h := t.Width(), t.Height()
	texels := make([]float32, 0, w*h*4)
	for y := range h {
		for x := range w {
			v := t.Load(x, y)
			texels = append(texels, v[:]...)
		}
	}
	out := make([]byte, len(texels)*2)
	half.ConvertFloat32ToBytes(out, texels)
	return out
}

func encodeR32(level []float32) []byte {
	out := make([]byte, len(level)*4)
	for i, v := range level {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

// decodeRGBA16 stores the rows of an RGBA16Float readback into dst.
func decodeRGBA16(rows []byte, pitch int, dst *texture.RGBA) {
	w := dst.Width()
	row := make([]float32, w*4)
	for y := range dst.Height() {
		half.ConvertBytesToFloat32(row, rows[y*pitch:y*pitch+w*8])
		for x := range w {
			dst.Store(x, y, [4]float32(row[x*4:x*4+4]))
		}
	}
}

// decodeR32 copies the rows of an R32Float readback into a tight level.
func decodeR32(rows []byte, pitch, width, height int, dst []float32) {
	for y := range height {
		row := rows[y*pitch:]
		for x := range width {
			dst[y*width+x] = math.Float32frombits(binary.LittleEndian.Uint32(row[x*4:]))
		}
	}
}

// structBytes returns the bytes of a parameter block whose Go layout
// matches its WGSL struct.
func structBytes[T any](v *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), unsafe.Sizeof(*v)) //nolint:gosec // fixed-layout parameter blocks
}
