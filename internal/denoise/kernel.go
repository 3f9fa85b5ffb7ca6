package denoise

import (
	"math"
	"sync"
)

// SpatialKernel returns the 1D spatial weights of a filter with the given
// radius, indexed by offset + radius. The standard deviation is half the
// radius, so the outermost taps still contribute. Weights are not
// normalized: the bilateral pass divides by the sum of its own weights.
//
// For radius <= 0, returns [1] (identity).
func SpatialKernel(radius int) []float32 {
	if radius <= 0 {
		return []float32{1}
	}

	sigma := max(float64(radius)/2, 0.5)
	denom := 2 * sigma * sigma
	weights := make([]float32, 2*radius+1)
	for o := -radius; o <= radius; o++ {
		weights[o+radius] = float32(math.Exp(-float64(o*o) / denom))
	}
	return weights
}

// kernels holds one lazily built kernel per radius in [0, MaxRadius].
var kernels [MaxRadius + 1]struct {
	once    sync.Once
	weights []float32
}

// CachedSpatialKernel returns the shared kernel for radius, clamped to
// [0, MaxRadius]. Callers must not modify it.
func CachedSpatialKernel(radius int) []float32 {
	radius = min(max(radius, 0), MaxRadius)
	k := &kernels[radius]
	k.once.Do(func() { k.weights = SpatialKernel(radius) })
	return k.weights
}
