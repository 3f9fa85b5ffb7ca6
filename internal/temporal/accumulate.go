package temporal

import (
	"errors"

	"github.com/gogpu/ssgi/internal/parallel"
	"github.com/gogpu/ssgi/internal/viewframe"
	"github.com/gogpu/ssgi/shader"
	"github.com/gogpu/ssgi/texture"
)

// ErrMissingInput is returned when a required input is nil.
var ErrMissingInput = errors.New("temporal: missing input")

// Inputs are the textures the accumulator reads.
type Inputs struct {
	// Current is this frame's viewport-sized lighting.
	Current *texture.RGBA

	// History is last frame's viewport-sized result.
	History *texture.RGBA

	// Velocity holds the buffer-sized viewport-UV motion in xy (current
	// minus previous). Nil means no motion.
	Velocity *texture.RGBA

	Frame viewframe.Frame
}

// Params configures the blend.
type Params struct {
	// Weight is the history weight. Zero writes Current unchanged.
	Weight float32

	// Clamp limits history to the range of the current 3x3 neighbourhood,
	// which rejects stale history after disocclusion.
	Clamp bool
}

// Accumulate writes lerp(current, reprojected history, weight) into dst.
// Pixels whose history position falls outside the viewport keep the current
// value. Returns the number of groups launched along each axis.
func Accumulate(d *parallel.Dispatcher, in Inputs, dst *texture.RGBA, p Params) ([2]int, error) {
	if in.Current == nil || in.History == nil || dst == nil {
		return [2]int{}, ErrMissingInput
	}
	f := in.Frame
	w, h := f.Width(), f.Height()
	weight := min(max(p.Weight, 0), 1)

	gx, gy := d.Dispatch(w, h, shader.Temporal.GroupSize(), func(x, y int) {
		c := in.Current.Load(x, y)
		if weight == 0 {
			dst.Store(x, y, c)
			return
		}

		uv := f.ViewportUV(x, y)
		if in.Velocity != nil {
			bx, by := f.ToBuffer(x, y)
			v := in.Velocity.Load(bx, by)
			uv[0] -= v[0]
			uv[1] -= v[1]
		}
		if uv[0] < 0 || uv[0] > 1 || uv[1] < 0 || uv[1] > 1 {
			dst.Store(x, y, c)
			return
		}

		hist := in.History.Sample(uv[0]*float32(w), uv[1]*float32(h))
		if p.Clamp {
			lo, hi := neighbourhood(in.Current, x, y)
			for i := range 4 {
				hist[i] = min(max(hist[i], lo[i]), hi[i])
			}
		}

		var out [4]float32
		for i := range 4 {
			out[i] = c[i]*(1-weight) + hist[i]*weight
		}
		dst.Store(x, y, out)
	})
	return [2]int{gx, gy}, nil
}

// neighbourhood returns the per-channel min and max of the 3x3 block
// around (x, y), clamped to the texture.
func neighbourhood(t *texture.RGBA, x, y int) (lo, hi [4]float32) {
	lo = t.Load(x, y)
	hi = lo
	for oy := -1; oy <= 1; oy++ {
		for ox := -1; ox <= 1; ox++ {
			v := t.Load(x+ox, y+oy)
			for i := range 4 {
				lo[i] = min(lo[i], v[i])
				hi[i] = max(hi[i], v[i])
			}
		}
	}
	return lo, hi
}
