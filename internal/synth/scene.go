package synth

import (
	"fmt"
	"image"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/ssgi/internal/hiz"
	"github.com/gogpu/ssgi/internal/viewframe"
	"github.com/gogpu/ssgi/texture"
)

// Material describes how a surface reflects and emits light.
type Material struct {
	Albedo   mgl32.Vec3
	Emissive mgl32.Vec3
}

// shape is an analytic surface the renderer can ray cast.
type shape interface {
	// intersect returns the ray parameter and surface normal of the nearest
	// hit in front of the origin.
	intersect(o, d mgl32.Vec3) (t float32, n mgl32.Vec3, ok bool)
}

// Plane is a square patch of a plane, centered on Center.
type Plane struct {
	Center mgl32.Vec3
	Normal mgl32.Vec3

	// Extent is the half size of the patch along the in-plane axes.
	// Zero means unbounded.
	Extent float32
}

func (p Plane) intersect(o, d mgl32.Vec3) (float32, mgl32.Vec3, bool) {
	n := p.Normal.Normalize()
	den := n.Dot(d)
	if math.Abs(float64(den)) < 1e-6 {
		return 0, n, false
	}
	t := p.Center.Sub(o).Dot(n) / den
	if t <= 0 {
		return 0, n, false
	}
	if p.Extent > 0 {
		off := o.Add(d.Mul(t)).Sub(p.Center)
		off = off.Sub(n.Mul(off.Dot(n)))
		if abs32(off[0]) > p.Extent || abs32(off[1]) > p.Extent || abs32(off[2]) > p.Extent {
			return 0, n, false
		}
	}
	if den > 0 {
		n = n.Mul(-1)
	}
	return t, n, true
}

// Box is an axis-aligned box.
type Box struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

func (b Box) intersect(o, d mgl32.Vec3) (float32, mgl32.Vec3, bool) {
	tNear := float32(math.Inf(-1))
	tFar := float32(math.Inf(1))
	axis := -1
	for i := range 3 {
		if abs32(d[i]) < 1e-8 {
			if o[i] < b.Min[i] || o[i] > b.Max[i] {
				return 0, mgl32.Vec3{}, false
			}
			continue
		}
		inv := 1 / d[i]
		t0 := (b.Min[i] - o[i]) * inv
		t1 := (b.Max[i] - o[i]) * inv
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		if t0 > tNear {
			tNear = t0
			axis = i
		}
		tFar = min(tFar, t1)
		if tNear > tFar {
			return 0, mgl32.Vec3{}, false
		}
	}
	if axis < 0 || tNear <= 0 {
		return 0, mgl32.Vec3{}, false
	}
	var n mgl32.Vec3
	if d[axis] > 0 {
		n[axis] = -1
	} else {
		n[axis] = 1
	}
	return tNear, n, true
}

type object struct {
	shape shape
	mat   Material
}

// Scene is a list of lit, analytic objects.
type Scene struct {
	objects []object

	// LightDir points from surfaces towards the directional light.
	LightDir mgl32.Vec3

	// LightColor is the radiance of the directional light.
	LightColor mgl32.Vec3

	// Ambient is added to every lit surface.
	Ambient mgl32.Vec3

	// Sky is the colour of pixels that hit nothing.
	Sky mgl32.Vec3
}

// NewScene creates an empty scene lit from above.
func NewScene() *Scene {
	return &Scene{
		LightDir:   mgl32.Vec3{0.4, 1, 0.3}.Normalize(),
		LightColor: mgl32.Vec3{1, 1, 1},
		Ambient:    mgl32.Vec3{0.05, 0.05, 0.05},
	}
}

// Add appends an object to the scene.
func (s *Scene) Add(sh shape, m Material) *Scene {
	s.objects = append(s.objects, object{shape: sh, mat: m})
	return s
}

// CornerScene is a grey floor with a red back wall and a bright green box,
// which bleeds colour onto the floor around it.
func CornerScene() *Scene {
	return NewScene().
		Add(Plane{Center: mgl32.Vec3{0, 0, 0}, Normal: mgl32.Vec3{0, 1, 0}, Extent: 8},
			Material{Albedo: mgl32.Vec3{0.7, 0.7, 0.7}}).
		Add(Plane{Center: mgl32.Vec3{0, 0, -3}, Normal: mgl32.Vec3{0, 0, 1}, Extent: 8},
			Material{Albedo: mgl32.Vec3{0.8, 0.1, 0.1}}).
		Add(Box{Min: mgl32.Vec3{-0.75, 0, -0.75}, Max: mgl32.Vec3{0.75, 1.5, 0.75}},
			Material{Albedo: mgl32.Vec3{0.1, 0.8, 0.1}, Emissive: mgl32.Vec3{0, 0.5, 0}})
}

// Frame is one rendered set of SSGI inputs.
type Frame struct {
	// Depth is the device depth of every buffer pixel.
	Depth *texture.Scalar

	// Color is the lit scene colour.
	Color *texture.RGBA

	// Normal holds world-space normals in xyz. Background pixels are zero.
	Normal *texture.RGBA

	// Velocity holds the viewport-UV motion (current minus previous) in xy.
	Velocity *texture.RGBA

	// ViewRect is the viewport the scene was rendered into.
	ViewRect image.Rectangle

	ViewProj    mgl32.Mat4
	InvViewProj mgl32.Mat4
}

// RenderOptions configures Render.
type RenderOptions struct {
	// Width and Height are the buffer size.
	Width  int
	Height int

	// ViewRect is the viewport inside the buffer. Empty means the whole
	// buffer. Pixels outside it are left at the far plane.
	ViewRect image.Rectangle

	Camera Camera

	// Previous is last frame's camera, used for velocity. A zero value
	// means the camera did not move.
	Previous Camera

	Convention hiz.Convention

	// ColorFormat is the format of the colour buffer. Zero means RGBA16Float.
	ColorFormat texture.Format
}

// Render ray casts the scene into a new set of frame buffers.
func (s *Scene) Render(opts RenderOptions) (*Frame, error) {
	f, vf, err := newFrame(opts)
	if err != nil {
		return nil, err
	}
	prev := opts.Previous
	if prev == (Camera{}) {
		prev = opts.Camera
	}
	aspect := vf.ViewSize[0] / vf.ViewSize[1]
	pf := viewframe.Resolve(vf.ViewRect, image.Pt(opts.Width, opts.Height), mgl32.Mat4{},
		prev.ViewProj(aspect, opts.Convention))

	conv := opts.Convention
	nearDepth := 1 - conv.Far()
	eye := opts.Camera.Eye

	for by := vf.ViewRect.Min.Y; by < vf.ViewRect.Max.Y; by++ {
		for bx := vf.ViewRect.Min.X; bx < vf.ViewRect.Max.X; bx++ {
			px, py := float32(bx)+0.5, float32(by)+0.5
			target := vf.ScreenToWorld(px, py, nearDepth)
			dir := target.Sub(eye).Normalize()

			hitT, n, mat, ok := s.cast(eye, dir)
			if !ok {
				f.Color.Store(bx, by, [4]float32{s.Sky[0], s.Sky[1], s.Sky[2], 1})
				far := eye.Add(dir.Mul(opts.Camera.Far * 0.999))
				storeVelocity(f.Velocity, vf, pf, bx, by, far)
				continue
			}

			hit := eye.Add(dir.Mul(hitT))
			if _, _, d, vis := vf.WorldToScreen(hit); vis {
				f.Depth.Store(0, bx, by, d)
			}

			c := s.shade(n, mat)
			f.Color.Store(bx, by, [4]float32{c[0], c[1], c[2], 1})
			f.Normal.Store(bx, by, [4]float32{n[0], n[1], n[2], 0})
			storeVelocity(f.Velocity, vf, pf, bx, by, hit)
		}
	}
	return f, nil
}

// Flat renders a frame whose every pixel is at the far plane, coloured c.
// Nothing in it can be hit by a screen-space ray.
func Flat(width, height int, conv hiz.Convention, c [4]float32) (*Frame, error) {
	f, _, err := newFrame(RenderOptions{
		Width:      width,
		Height:     height,
		Camera:     DefaultCamera(),
		Convention: conv,
	})
	if err != nil {
		return nil, err
	}
	f.Color.Fill(c)
	return f, nil
}

// newFrame allocates far-plane buffers and resolves the view frame.
func newFrame(opts RenderOptions) (*Frame, viewframe.Frame, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, viewframe.Frame{}, fmt.Errorf("synth: %w: %dx%d",
			texture.ErrInvalidDimensions, opts.Width, opts.Height)
	}
	colorFormat := opts.ColorFormat
	if colorFormat == 0 {
		colorFormat = texture.FormatRGBA16Float
	}
	vr := opts.ViewRect
	if vr.Empty() {
		vr = image.Rect(0, 0, opts.Width, opts.Height)
	}
	vr = vr.Intersect(image.Rect(0, 0, opts.Width, opts.Height))
	if vr.Empty() {
		return nil, viewframe.Frame{}, fmt.Errorf("synth: %w: view rect %v outside buffer",
			texture.ErrInvalidDimensions, opts.ViewRect)
	}

	depth, err := texture.NewScalar(texture.Desc2D("SceneDepth", opts.Width, opts.Height, texture.FormatR32Float))
	if err != nil {
		return nil, viewframe.Frame{}, err
	}
	depth.Fill(opts.Convention.Far())

	color, err := texture.NewRGBA(texture.Desc2D("SceneColor", opts.Width, opts.Height, colorFormat))
	if err != nil {
		return nil, viewframe.Frame{}, err
	}
	normal := texture.MustRGBA(texture.Desc2D("GBufferNormal", opts.Width, opts.Height, texture.FormatRGBA16Float))
	velocity := texture.MustRGBA(texture.Desc2D("Velocity", opts.Width, opts.Height, texture.FormatRGBA16Float))

	aspect := float32(vr.Dx()) / float32(vr.Dy())
	vp := opts.Camera.ViewProj(aspect, opts.Convention)
	vf := viewframe.Resolve(vr, image.Pt(opts.Width, opts.Height), mgl32.Mat4{}, vp)

	return &Frame{
		Depth:       depth,
		Color:       color,
		Normal:      normal,
		Velocity:    velocity,
		ViewRect:    vr,
		ViewProj:    vp,
		InvViewProj: vf.InvViewProj,
	}, vf, nil
}

func (s *Scene) cast(o, d mgl32.Vec3) (float32, mgl32.Vec3, Material, bool) {
	best := float32(math.Inf(1))
	var n mgl32.Vec3
	var mat Material
	found := false
	for _, obj := range s.objects {
		t, on, ok := obj.shape.intersect(o, d)
		if ok && t < best {
			best, n, mat, found = t, on, obj.mat, true
		}
	}
	return best, n, mat, found
}

func (s *Scene) shade(n mgl32.Vec3, m Material) mgl32.Vec3 {
	ndotl := max(n.Dot(s.LightDir), 0)
	light := s.Ambient.Add(s.LightColor.Mul(ndotl))
	return mgl32.Vec3{
		m.Albedo[0]*light[0] + m.Emissive[0],
		m.Albedo[1]*light[1] + m.Emissive[1],
		m.Albedo[2]*light[2] + m.Emissive[2],
	}
}

// storeVelocity writes the viewport-UV motion of world point p.
func storeVelocity(v *texture.RGBA, cur, prev viewframe.Frame, bx, by int, p mgl32.Vec3) {
	pbx, pby, _, ok := prev.WorldToScreen(p)
	if !ok {
		return
	}
	dx := (float32(bx) + 0.5 - pbx) * cur.InvViewSize[0]
	dy := (float32(by) + 0.5 - pby) * cur.InvViewSize[1]
	v.Store(bx, by, [4]float32{dx, dy, 0, 0})
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
