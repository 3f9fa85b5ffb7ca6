package trace

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/ssgi/internal/hiz"
	"github.com/gogpu/ssgi/internal/viewframe"
	"github.com/gogpu/ssgi/texture"
)

// surfaceNormal returns the world normal at buffer pixel (bx, by), facing
// towards the viewer. The normal proxy is used when it holds a non-zero
// vector; otherwise the normal is rebuilt from neighbouring depths.
func surfaceNormal(normals *texture.RGBA, depth *texture.Scalar, f viewframe.Frame,
	conv hiz.Convention, bx, by int, p, toEye mgl32.Vec3,
) mgl32.Vec3 {
	if normals != nil {
		v := normals.Load(bx, by)
		n := mgl32.Vec3{v[0], v[1], v[2]}
		if l := n.Len(); l > 1e-4 {
			return faceViewer(n.Mul(1/l), toEye)
		}
	}

	dx := neighbourDelta(depth, f, conv, bx, by, 1, 0, p)
	dy := neighbourDelta(depth, f, conv, bx, by, 0, 1, p)
	n := dx.Cross(dy)
	if n.Len() < 1e-12 {
		return toEye
	}
	return faceViewer(n.Normalize(), toEye)
}

// neighbourDelta returns the world-space step to the neighbour along
// (sx, sy), choosing the side whose depth is closest to the center so
// silhouettes do not bend the normal.
func neighbourDelta(depth *texture.Scalar, f viewframe.Frame, conv hiz.Convention,
	bx, by, sx, sy int, p mgl32.Vec3,
) mgl32.Vec3 {
	d0 := depth.Load(0, bx, by)
	fwd := depth.Load(0, bx+sx, by+sy)
	back := depth.Load(0, bx-sx, by-sy)

	useFwd := abs32(fwd-d0) <= abs32(back-d0)
	if conv.IsFar(fwd) {
		useFwd = false
	}
	if conv.IsFar(back) {
		useFwd = true
	}

	cx, cy := float32(bx)+0.5, float32(by)+0.5
	if useFwd {
		q := f.ScreenToWorld(cx+float32(sx), cy+float32(sy), fwd)
		return q.Sub(p)
	}
	q := f.ScreenToWorld(cx-float32(sx), cy-float32(sy), back)
	return p.Sub(q)
}

func faceViewer(n, toEye mgl32.Vec3) mgl32.Vec3 {
	if n.Dot(toEye) < 0 {
		return n.Mul(-1)
	}
	return n
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
