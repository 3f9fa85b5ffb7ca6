// Package trace implements the screen-space ray march of the SSGI pipeline.
//
// Every viewport pixel shoots one cosine-distributed ray into the hemisphere
// of its surface and marches it through the Hi-Z pyramid: coarse levels skip
// empty space, fine levels find the first surface the ray passes behind.
// A hit returns the scene colour at that surface, scaled by the intensity
// and attenuated with distance and towards the viewport edges.
package trace

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/ssgi/internal/hiz"
	"github.com/gogpu/ssgi/internal/parallel"
	"github.com/gogpu/ssgi/internal/viewframe"
	"github.com/gogpu/ssgi/shader"
	"github.com/gogpu/ssgi/texture"
)

// Default march parameters.
const (
	DefaultMaxIterations = 64
	DefaultThickness     = 2.0
	DefaultRayLength     = 100.0
	DefaultIntensity     = 10.0
)

const (
	// normalBias offsets the ray origin off the surface, in world units.
	normalBias = 0.01

	// edgeFade is the viewport UV band over which hits fade out.
	edgeFade = 0.1

	// cellEpsilon pushes the march just past a cell boundary.
	cellEpsilon = 1e-3
)

// ErrMissingInput is returned when a required input is nil.
var ErrMissingInput = errors.New("trace: missing input")

// Params configures the march.
type Params struct {
	// MaxMip is the coarsest pyramid level the march may climb to.
	MaxMip int

	// MaxIterations bounds the number of cell steps per ray.
	MaxIterations int

	// Thickness is the world-space depth assumed behind every surface.
	Thickness float32

	// RayLength is the world-space length of every ray.
	RayLength float32

	// Intensity scales the returned radiance.
	Intensity float32

	// FrameIndex seeds the per-pixel jitter, see DitherIndex.
	FrameIndex uint32
}

// DefaultParams returns the parameters for a pyramid of the given number
// of levels.
func DefaultParams(levels int) Params {
	return Params{
		MaxMip:        max(levels-1, 0),
		MaxIterations: DefaultMaxIterations,
		Thickness:     DefaultThickness,
		RayLength:     DefaultRayLength,
		Intensity:     DefaultIntensity,
	}
}

// Diagnostic selects the per-pixel quantity written to the auxiliary
// output.
type Diagnostic uint8

const (
	// DiagnosticNone writes no auxiliary output.
	DiagnosticNone Diagnostic = iota

	// DiagnosticIterations writes the cell steps taken over MaxIterations.
	DiagnosticIterations

	// DiagnosticHitUV writes the viewport UV of the hit in rg, hit flag in a.
	DiagnosticHitUV

	// DiagnosticRayDirection writes the world ray direction remapped to [0, 1].
	DiagnosticRayDirection
)

// String returns the diagnostic name.
func (d Diagnostic) String() string {
	switch d {
	case DiagnosticNone:
		return "None"
	case DiagnosticIterations:
		return "Iterations"
	case DiagnosticHitUV:
		return "HitUV"
	case DiagnosticRayDirection:
		return "RayDirection"
	default:
		return fmt.Sprintf("Diagnostic(%d)", d)
	}
}

// Inputs are the textures the trace reads.
type Inputs struct {
	Pyramid *hiz.Pyramid

	// Color is the lit scene colour, sampled at hits.
	Color texture.Slice

	// Depth is the buffer-sized scene depth.
	Depth *texture.Scalar

	// Normal holds world normals in xyz. Nil or zero texels fall back to
	// normals rebuilt from depth.
	Normal *texture.RGBA

	Frame viewframe.Frame
}

// Outputs are the textures the trace writes. Both are viewport sized.
type Outputs struct {
	// Result receives radiance in rgb and the hit flag in a.
	Result *texture.RGBA

	// Aux receives the selected diagnostic. May be nil.
	Aux *texture.RGBA

	Diagnostic Diagnostic
}

// Stats summarizes one trace pass.
type Stats struct {
	Groups     [2]int
	Hits       int64
	Iterations int64
}

// Trace marches one ray per viewport pixel.
func Trace(d *parallel.Dispatcher, in Inputs, out Outputs, p Params) (Stats, error) {
	if in.Pyramid == nil || in.Depth == nil || in.Color.Texture == nil || out.Result == nil {
		return Stats{}, ErrMissingInput
	}
	if p.MaxIterations <= 0 {
		p.MaxIterations = DefaultMaxIterations
	}
	p.MaxMip = min(max(p.MaxMip, 0), in.Pyramid.MaxLevel())

	w, h := in.Frame.Width(), in.Frame.Height()
	rows := make([]rowStats, h)

	gx, gy := d.Dispatch(w, h, shader.Trace.GroupSize(), func(x, y int) {
		r := tracePixel(in, p, x, y)
		out.Result.Store(x, y, r.radiance)
		if out.Aux != nil && out.Diagnostic != DiagnosticNone {
			out.Aux.Store(x, y, r.diagnostic(out.Diagnostic, p))
		}
		// One dispatch row of groups owns whole pixel rows.
		rows[y].iterations += int64(r.iterations)
		if r.hit {
			rows[y].hits++
		}
	})

	s := Stats{Groups: [2]int{gx, gy}}
	for _, r := range rows {
		s.Hits += r.hits
		s.Iterations += r.iterations
	}
	return s, nil
}

type rowStats struct {
	hits       int64
	iterations int64
}

// pixelResult is the outcome of one ray.
type pixelResult struct {
	radiance   [4]float32
	hit        bool
	hitUV      mgl32.Vec2
	dir        mgl32.Vec3
	iterations int
}

func (r pixelResult) diagnostic(d Diagnostic, p Params) [4]float32 {
	switch d {
	case DiagnosticIterations:
		v := float32(r.iterations) / float32(p.MaxIterations)
		return [4]float32{v, v, v, 1}
	case DiagnosticHitUV:
		if !r.hit {
			return [4]float32{}
		}
		return [4]float32{r.hitUV[0], r.hitUV[1], 0, 1}
	case DiagnosticRayDirection:
		return [4]float32{r.dir[0]*0.5 + 0.5, r.dir[1]*0.5 + 0.5, r.dir[2]*0.5 + 0.5, 1}
	default:
		return [4]float32{}
	}
}

func tracePixel(in Inputs, p Params, x, y int) pixelResult {
	f := in.Frame
	conv := in.Pyramid.Convention()
	bx, by := f.ToBuffer(x, y)

	depth := in.Depth.Load(0, bx, by)
	if conv.IsFar(depth) {
		return pixelResult{}
	}

	cx, cy := float32(bx)+0.5, float32(by)+0.5
	pos := f.ScreenToWorld(cx, cy, depth)
	nearPos := f.ScreenToWorld(cx, cy, 1-conv.Far())
	toEye := nearPos.Sub(pos).Normalize()

	n := surfaceNormal(in.Normal, in.Depth, f, conv, bx, by, pos, toEye)
	u1, u2 := samplePair(x, y, p.FrameIndex)
	dir := cosineHemisphere(n, u1, u2)

	res := pixelResult{dir: dir}
	start := pos.Add(n.Mul(normalBias))
	hit, iters, ok := march(in.Pyramid, f, start, dir, p)
	res.iterations = iters
	if !ok {
		return res
	}

	// Rays must arrive at the front of the surface they hit.
	if in.Normal != nil {
		hn := in.Normal.Load(hit.bx, hit.by)
		if hn[0]*dir[0]+hn[1]*dir[1]+hn[2]*dir[2] > 0 {
			return res
		}
	}

	c := in.Color.Texture.Load(hit.bx, hit.by)
	dist := hit.world.Sub(pos).Len()
	falloff := 1 / (1 + dist*dist)
	uv := mgl32.Vec2{
		(float32(hit.bx) + 0.5 - f.ViewMin[0]) * f.InvViewSize[0],
		(float32(hit.by) + 0.5 - f.ViewMin[1]) * f.InvViewSize[1],
	}
	fade := edgeFactor(uv)
	s := p.Intensity * falloff * fade

	res.hit = true
	res.hitUV = uv
	res.radiance = [4]float32{c[0] * s, c[1] * s, c[2] * s, 1}
	return res
}

// edgeFactor fades hits near the viewport border to zero.
func edgeFactor(uv mgl32.Vec2) float32 {
	m := min(uv[0], 1-uv[0], uv[1], 1-uv[1])
	return clamp01(m / edgeFade)
}

func clamp01(v float32) float32 {
	return min(max(v, 0), 1)
}

// hitPoint is where a ray met the depth buffer.
type hitPoint struct {
	bx, by int
	world  mgl32.Vec3
}

// march walks the screen-space projection of the segment from start along
// dir through the pyramid. It reports the first level-0 texel the ray passes
// behind by no more than the thickness.
func march(pyr *hiz.Pyramid, f viewframe.Frame, start, dir mgl32.Vec3, p Params) (hitPoint, int, bool) {
	conv := pyr.Convention()
	end := start.Add(dir.Mul(p.RayLength))
	end, ok := clipToNearPlane(f, start, end)
	if !ok {
		return hitPoint{}, 0, false
	}

	sx, sy, sz, ok := f.WorldToScreen(start)
	if !ok {
		return hitPoint{}, 0, false
	}
	ex, ey, ez, _ := f.WorldToScreen(end)

	// Device depth is affine in screen space, so the projected ray is
	// a straight line in (x, y, depth).
	o := mgl32.Vec3{sx, sy, sz}
	dv := mgl32.Vec3{ex - sx, ey - sy, ez - sz}
	if max(abs32(dv[0]), abs32(dv[1])) < 1 {
		return hitPoint{}, 0, false
	}

	at := func(t float32) mgl32.Vec3 { return o.Add(dv.Mul(t)) }
	behind := func(rayZ, surfZ float32) bool { return conv.IsNearer(surfZ, rayZ) }

	// Leave the starting texel before testing anything.
	t := cellExit(o, dv, o, 0) + cellEpsilon/maxAbs2(dv)
	level := 0
	iter := 0

	for iter < p.MaxIterations && t <= 1 {
		iter++
		pt := at(t)
		if !f.ContainsBuffer(pt[0], pt[1]) {
			return hitPoint{}, iter, false
		}

		size := float32(int(1) << level)
		cellX := int(math.Floor(float64(pt[0] / size)))
		cellY := int(math.Floor(float64(pt[1] / size)))
		surf := pyr.Load(level, cellX, cellY)
		tExit := min(cellExit(o, dv, pt, level), 1)

		zIn := pt[2]
		zOut := at(tExit)[2]

		if !behind(zIn, surf) && !behind(zOut, surf) {
			// Nothing in this cell is in front of the ray.
			t = tExit + cellEpsilon/maxAbs2(dv)
			level = min(level+1, p.MaxMip)
			continue
		}

		if level > 0 {
			// Move to where the ray crosses the cell's nearest depth, then
			// refine.
			if !behind(zIn, surf) && dv[2] != 0 {
				t = max(t, (surf-o[2])/dv[2])
			}
			level--
			continue
		}

		if !behind(zIn, surf) && dv[2] != 0 {
			t = max(t, (surf-o[2])/dv[2])
			pt = at(t)
		}
		rayW := f.ScreenToWorld(pt[0], pt[1], pt[2])
		surfW := f.ScreenToWorld(pt[0], pt[1], surf)
		if rayW.Sub(surfW).Len() <= p.Thickness {
			return hitPoint{bx: cellX, by: cellY, world: surfW}, iter, true
		}

		// Passed behind a thick occluder: keep walking at full resolution.
		t = tExit + cellEpsilon/maxAbs2(dv)
	}
	return hitPoint{}, iter, false
}

// cellExit returns the ray parameter at which the ray leaves the level cell
// containing pt.
func cellExit(o, dv, pt mgl32.Vec3, level int) float32 {
	size := float32(int(1) << level)
	tx := float32(math.Inf(1))
	ty := float32(math.Inf(1))

	cx := float32(math.Floor(float64(pt[0] / size)))
	cy := float32(math.Floor(float64(pt[1] / size)))
	if dv[0] > 0 {
		tx = ((cx+1)*size - o[0]) / dv[0]
	} else if dv[0] < 0 {
		tx = (cx*size - o[0]) / dv[0]
	}
	if dv[1] > 0 {
		ty = ((cy+1)*size - o[1]) / dv[1]
	} else if dv[1] < 0 {
		ty = (cy*size - o[1]) / dv[1]
	}
	return min(tx, ty)
}

func maxAbs2(v mgl32.Vec3) float32 {
	return max(abs32(v[0]), abs32(v[1]))
}

// clipToNearPlane shortens the segment so its end stays in front of the
// camera.
func clipToNearPlane(f viewframe.Frame, start, end mgl32.Vec3) (mgl32.Vec3, bool) {
	ws := f.ViewProj.Mul4x1(start.Vec4(1))[3]
	we := f.ViewProj.Mul4x1(end.Vec4(1))[3]
	const minW = 1e-3
	if ws <= minW {
		return end, false
	}
	if we >= minW {
		return end, true
	}
	t := (ws - minW) / (ws - we)
	return start.Add(end.Sub(start).Mul(t)), true
}
