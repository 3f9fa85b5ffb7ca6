package main

import (
	"errors"
	"fmt"
	"image"
	"os"

	"github.com/mrjoshuak/go-openexr/exr"
	"github.com/mrjoshuak/go-openexr/exrutil"
	"github.com/mrjoshuak/go-openexr/half"
	"github.com/urfave/cli"

	"github.com/gogpu/ssgi/internal/hiz"
	"github.com/gogpu/ssgi/internal/synth"
	"github.com/gogpu/ssgi/texture"
)

// G-buffer EXR channel names.
var (
	colorChannels    = []string{"R", "G", "B", "A"}
	depthChannel     = "Z"
	normalChannels   = []string{"N.X", "N.Y", "N.Z"}
	velocityChannels = []string{"V.X", "V.Y"}
)

// WriteGBuffer renders the synthetic scene and stores its G-buffer as EXR.
func WriteGBuffer(ctx *cli.Context) error {
	setupLogging(ctx)

	conv := convention(ctx)
	cam := synth.DefaultCamera().Orbit(float32(ctx.Float64("orbit")))
	f, err := synth.CornerScene().Render(synth.RenderOptions{
		Width:      ctx.Int("width"),
		Height:     ctx.Int("height"),
		Camera:     cam,
		Convention: conv,
	})
	if err != nil {
		return err
	}

	out := ctx.String("out")
	if err := writeGBuffer(out, f); err != nil {
		return err
	}
	logger.Info("wrote G-buffer", "file", out, "size", fmt.Sprintf("%dx%d", f.Depth.Width(), f.Depth.Height()))
	return nil
}

func convention(ctx *cli.Context) hiz.Convention {
	if ctx.Bool("standard-depth") {
		return hiz.Standard
	}
	return hiz.Reversed
}

// writeGBuffer stores colour as half floats and depth, normals and motion
// as full floats.
func writeGBuffer(path string, f *synth.Frame) error {
	w, h := f.Depth.Width(), f.Depth.Height()
	hdr := exr.NewScanlineHeader(w, h)
	hdr.SetCompression(exr.CompressionZIP)

	cl := exr.NewChannelList()
	for _, name := range colorChannels {
		cl.Add(exr.NewChannel(name, exr.PixelTypeHalf))
	}
	cl.Add(exr.NewChannel(depthChannel, exr.PixelTypeFloat))
	for _, name := range append(append([]string{}, normalChannels...), velocityChannels...) {
		cl.Add(exr.NewChannel(name, exr.PixelTypeFloat))
	}
	hdr.SetChannels(cl)

	fb := exr.NewFrameBuffer()
	for c, name := range colorChannels {
		data := make([]half.Half, w*h)
		for y := range h {
			for x := range w {
				data[y*w+x] = half.FromFloat32(f.Color.Load(x, y)[c])
			}
		}
		fb.Set(name, exr.NewSliceFromHalf(data, w, h))
	}

	depth := make([]float32, w*h)
	copy(depth, f.Depth.Level(0))
	fb.Set(depthChannel, exr.NewSliceFromFloat32(depth, w, h))

	insertChannels(fb, f.Normal, normalChannels, w, h)
	insertChannels(fb, f.Velocity, velocityChannels, w, h)

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	sw, err := exr.NewScanlineWriter(file, hdr)
	if err != nil {
		return err
	}
	sw.SetFrameBuffer(fb)
	if err := sw.WritePixels(0, h-1); err != nil {
		return err
	}
	return sw.Close()
}

func insertChannels(fb *exr.FrameBuffer, t *texture.RGBA, names []string, w, h int) {
	for c, name := range names {
		data := make([]float32, w*h)
		for y := range h {
			for x := range w {
				data[y*w+x] = t.Load(x, y)[c]
			}
		}
		fb.Set(name, exr.NewSliceFromFloat32(data, w, h))
	}
}

// readGBuffer loads a G-buffer EXR. Colour and depth are required; normals
// and motion are optional. The matrices come from cam, which must match the
// camera the G-buffer was rendered with.
func readGBuffer(path string, cam synth.Camera, conv hiz.Convention) (*synth.Frame, error) {
	info, err := exrutil.GetFileInfo(path)
	if err != nil {
		return nil, err
	}
	has := make(map[string]bool, len(info.Channels))
	for _, name := range info.Channels {
		has[name] = true
	}
	for _, name := range []string{"R", "G", "B", depthChannel} {
		if !has[name] {
			return nil, fmt.Errorf("%s: missing channel %q", path, name)
		}
	}

	file, err := exr.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	w, h := info.Width, info.Height
	if w <= 0 || h <= 0 {
		return nil, errors.New(path + ": empty data window")
	}

	depthData, err := exrutil.ExtractChannel(file, depthChannel)
	if err != nil {
		return nil, err
	}
	depth, err := texture.NewScalarFrom("SceneDepth", w, h, depthData)
	if err != nil {
		return nil, err
	}

	color := texture.MustRGBA(texture.Desc2D("SceneColor", w, h, texture.FormatRGBA16Float))
	color.Fill([4]float32{0, 0, 0, 1})
	if err := loadChannels(file, color, colorChannels, has); err != nil {
		return nil, err
	}

	var normal, velocity *texture.RGBA
	if has[normalChannels[0]] {
		normal = texture.MustRGBA(texture.Desc2D("GBufferNormal", w, h, texture.FormatRGBA16Float))
		if err := loadChannels(file, normal, normalChannels, has); err != nil {
			return nil, err
		}
	}
	if has[velocityChannels[0]] {
		velocity = texture.MustRGBA(texture.Desc2D("Velocity", w, h, texture.FormatRGBA16Float))
		if err := loadChannels(file, velocity, velocityChannels, has); err != nil {
			return nil, err
		}
	}

	vp := cam.ViewProj(float32(w)/float32(h), conv)
	return &synth.Frame{
		Depth:       depth,
		Color:       color,
		Normal:      normal,
		Velocity:    velocity,
		ViewRect:    image.Rect(0, 0, w, h),
		ViewProj:    vp,
		InvViewProj: vp.Inv(),
	}, nil
}

// loadChannels copies the present channels of names into the matching
// components of t.
func loadChannels(file *exr.File, t *texture.RGBA, names []string, has map[string]bool) error {
	data, err := exrutil.ExtractChannels(file, present(names, has)...)
	if err != nil {
		return err
	}
	w := t.Width()
	for c, name := range names {
		ch, ok := data[name]
		if !ok {
			continue
		}
		for i, v := range ch {
			x, y := i%w, i/w
			px := t.Load(x, y)
			px[c] = v
			t.Store(x, y, px)
		}
	}
	return nil
}

func present(names []string, has map[string]bool) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if has[name] {
			out = append(out, name)
		}
	}
	return out
}
