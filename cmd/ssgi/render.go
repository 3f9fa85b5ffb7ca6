package main

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"
	"os"

	"github.com/mrjoshuak/go-openexr/exr"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
	"golang.org/x/image/draw"

	"github.com/gogpu/ssgi"
	"github.com/gogpu/ssgi/internal/gpu"
	"github.com/gogpu/ssgi/internal/hiz"
	"github.com/gogpu/ssgi/internal/synth"
	"github.com/gogpu/ssgi/internal/tonemap"
	"github.com/gogpu/ssgi/texture"
)

// frameSource produces the G-buffer of frame i.
type frameSource func(i int) (*synth.Frame, error)

// RenderFrames runs the pipeline over a frame sequence and exports the last
// composited frame.
func RenderFrames(ctx *cli.Context) error {
	setupLogging(ctx)

	if ctx.NArg() != 0 {
		return errors.New("render takes no arguments")
	}
	frames := ctx.Int("frames")
	if frames <= 0 {
		return fmt.Errorf("frames must be positive, got %d", frames)
	}
	debug, err := ssgi.ParseDebugMode(ctx.String("debug"))
	if err != nil {
		return err
	}
	order, err := ssgi.ParsePassOrder(ctx.String("order"))
	if err != nil {
		return err
	}

	conv := convention(ctx)
	opts := pipelineOptions(ctx, conv)
	if ctx.Bool("gpu") {
		h, err := gpu.OpenHeadless()
		if err != nil {
			logger.Warn("no GPU device, running on CPU", "err", err)
		} else {
			defer h.Close()
			opts = append(opts, ssgi.WithDevice(h))
		}
	}
	p, err := ssgi.New(opts...)
	if err != nil {
		return err
	}
	defer p.Close()
	p.Settings().SetDebugMode(debug)
	p.Settings().SetPassOrder(order)
	logger.Debug("pipeline", "gpu", p.OnGPU())

	source, err := newFrameSource(ctx, conv)
	if err != nil {
		return err
	}

	var (
		out     texture.Slice
		reports = make([]ssgi.FrameReport, 0, frames)
	)
	for i := range frames {
		f, err := source(i)
		if err != nil {
			return err
		}
		var report ssgi.FrameReport
		out, report = p.Process(ssgi.FrameInputs{
			SceneDepth:  f.Depth,
			SceneColor:  texture.Slice{Texture: f.Color, ViewRect: f.ViewRect},
			Normal:      f.Normal,
			Velocity:    f.Velocity,
			ViewProj:    f.ViewProj,
			InvViewProj: f.InvViewProj,
			//nolint:gosec // G115: i is non-negative
			FrameNumber: uint64(i),
		})
		if !report.Processed() {
			logger.Warn("frame bypassed", "frame", i, "reason", report.Bypass)
		}
		reports = append(reports, report)
	}

	displayPassStats(reports[len(reports)-1])
	displaySequenceStats(reports)
	logger.Info("allocator", "stats", p.Allocator().Stats().String())

	outFile := ctx.String("out")
	if err := writeEXR(outFile, out.Texture); err != nil {
		return err
	}
	logger.Info("wrote frame", "file", outFile)

	if preview := ctx.String("preview"); preview != "" {
		if err := writePreview(preview, out.Texture, ctx.Int("preview-width")); err != nil {
			return err
		}
		logger.Info("wrote preview", "file", preview)
	}
	return nil
}

func pipelineOptions(ctx *cli.Context, conv hiz.Convention) []ssgi.Option {
	opts := []ssgi.Option{
		ssgi.WithWorkers(ctx.Int("workers")),
		ssgi.WithMaxIterations(ctx.Int("iterations")),
		ssgi.WithIntensity(float32(ctx.Float64("intensity"))),
		ssgi.WithThickness(float32(ctx.Float64("thickness"))),
		ssgi.WithRayLength(float32(ctx.Float64("ray-length"))),
		ssgi.WithDenoiseRadius(ctx.Int("radius")),
		ssgi.WithHistoryWeight(float32(ctx.Float64("history-weight"))),
		ssgi.WithDepthConvention(ssgi.DepthConvention(conv)),
	}
	if ctx.Bool("modulate") {
		opts = append(opts, ssgi.WithBlendMode(ssgi.BlendModulate))
	}
	return opts
}

// newFrameSource returns the synthetic orbit sequence, or a static G-buffer
// when --input is set.
func newFrameSource(ctx *cli.Context, conv hiz.Convention) (frameSource, error) {
	base := synth.DefaultCamera()
	orbit := float32(ctx.Float64("orbit"))

	if input := ctx.String("input"); input != "" {
		f, err := readGBuffer(input, base.Orbit(orbit), conv)
		if err != nil {
			return nil, err
		}
		if ctx.Int("resize-at") >= 0 {
			logger.Warn("resize-at is ignored for EXR input")
		}
		return func(int) (*synth.Frame, error) { return f, nil }, nil
	}

	scene := synth.CornerScene()
	step := float32(ctx.Float64("orbit-step"))
	width, height := ctx.Int("width"), ctx.Int("height")
	resizeAt, scale := ctx.Int("resize-at"), ctx.Float64("resize-scale")

	return func(i int) (*synth.Frame, error) {
		w, h := width, height
		if resizeAt >= 0 && i >= resizeAt {
			w, h = scaled(w, scale), scaled(h, scale)
		}
		opts := synth.RenderOptions{
			Width:      w,
			Height:     h,
			Camera:     base.Orbit(orbit + step*float32(i)),
			Convention: conv,
		}
		if i > 0 {
			opts.Previous = base.Orbit(orbit + step*float32(i-1))
		}
		return scene.Render(opts)
	}, nil
}

func scaled(v int, s float64) int {
	return max(1, int(math.Round(float64(v)*s)))
}

func displayPassStats(r ssgi.FrameReport) {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Pass", "Dispatch", "Groups", "Time"})
	for _, pass := range r.Passes {
		table.Append([]string{
			pass.Name,
			fmt.Sprintf("%dx%d", pass.Width, pass.Height),
			fmt.Sprintf("%dx%d", pass.Groups[0], pass.Groups[1]),
			pass.Duration.String(),
		})
	}
	table.SetFooter([]string{"", "", "TOTAL", r.Total.String()})

	table.Render()
	logger.Info(fmt.Sprintf("frame %d passes (%s, %s)\n%s", r.FrameNumber, r.DebugMode, r.PassOrder, buf.String()))
}

func displaySequenceStats(reports []ssgi.FrameReport) {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Frame", "View", "Bypass", "History", "Hits", "Iterations", "Time"})
	for _, r := range reports {
		history := "kept"
		if r.HistoryReset {
			history = "reset: " + r.HistoryResetReason
		}
		table.Append([]string{
			fmt.Sprintf("%d", r.FrameNumber),
			fmt.Sprintf("%dx%d", r.ViewSize[0], r.ViewSize[1]),
			r.Bypass.String(),
			history,
			fmt.Sprintf("%d", r.Hits),
			fmt.Sprintf("%d", r.Iterations),
			r.Total.String(),
		})
	}

	table.Render()
	fmt.Fprint(os.Stdout, buf.String())
}

// writeEXR stores t as a half-float RGBA EXR.
func writeEXR(path string, t *texture.RGBA) error {
	img := exr.NewRGBAImage(image.Rect(0, 0, t.Width(), t.Height()))
	for y := range t.Height() {
		for x := range t.Width() {
			c := t.Load(x, y)
			img.SetRGBA(x, y, c[0], c[1], c[2], c[3])
		}
	}
	return exr.EncodeFile(path, img)
}

// writePreview tone maps t and stores it as a PNG, scaled to width when
// width is positive.
func writePreview(path string, t *texture.RGBA, width int) error {
	img := tonemap.Image(t)
	if width > 0 && width != img.Bounds().Dx() {
		height := max(1, img.Bounds().Dy()*width/img.Bounds().Dx())
		dst := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
		img = dst
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
