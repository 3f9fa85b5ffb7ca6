package texture

import (
	"errors"
	"fmt"
	"sync"
)

// ErrAllocatorClosed is returned when allocating from a closed allocator.
var ErrAllocatorClosed = errors.New("texture: allocator closed")

// DefaultMaxPerBucket is the number of free textures kept per shape.
const DefaultMaxPerBucket = 4

// Resource is a texture the allocator can pool.
type Resource interface {
	Desc() Desc
	clear()
}

// poolKey identifies a bucket of interchangeable textures.
type poolKey struct {
	width  int
	height int
	format Format
	levels int
}

func keyOf(d Desc) poolKey {
	return poolKey{width: d.Width, height: d.Height, format: d.Format, levels: d.Levels()}
}

// Stats contains allocator statistics.
type Stats struct {
	// LiveTextures is the number of textures handed out and not yet released.
	LiveTextures int

	// LiveBytes is the memory held by live textures.
	LiveBytes uint64

	// PooledTextures is the number of free textures kept for reuse.
	PooledTextures int

	// Allocations is the total number of textures requested.
	Allocations uint64

	// Reuses is how many requests were served from the pool.
	Reuses uint64
}

// String returns a human-readable summary.
func (s Stats) String() string {
	return fmt.Sprintf("Textures[%d live, %d KB, %d pooled, %d allocs, %d reused]",
		s.LiveTextures, s.LiveBytes/1024, s.PooledTextures, s.Allocations, s.Reuses)
}

// Allocator hands out textures and recycles released ones by shape.
//
// Textures are requested through a Scope, which releases everything it owns
// when the frame ends. A texture that must outlive the frame is taken out of
// the scope with Scope.Extract and later handed back with Scope.Adopt or
// Allocator.Release.
//
// Allocator is safe for concurrent use.
type Allocator struct {
	mu           sync.Mutex
	buckets      map[poolKey][]Resource
	live         map[Resource]struct{}
	maxPerBucket int
	liveBytes    uint64
	allocations  uint64
	reuses       uint64
	closed       bool
}

// NewAllocator creates an allocator keeping at most maxPerBucket free
// textures per shape. Non-positive values use DefaultMaxPerBucket.
func NewAllocator(maxPerBucket int) *Allocator {
	if maxPerBucket <= 0 {
		maxPerBucket = DefaultMaxPerBucket
	}
	return &Allocator{
		buckets:      make(map[poolKey][]Resource),
		live:         make(map[Resource]struct{}),
		maxPerBucket: maxPerBucket,
	}
}

// Begin opens a frame scope.
func (a *Allocator) Begin(name string) *Scope {
	return &Scope{alloc: a, name: name}
}

// get returns a pooled resource of the desc shape, or nil.
func (a *Allocator) get(desc Desc) (Resource, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, ErrAllocatorClosed
	}
	a.allocations++

	key := keyOf(desc)
	bucket := a.buckets[key]
	if len(bucket) == 0 {
		return nil, nil
	}
	r := bucket[len(bucket)-1]
	a.buckets[key] = bucket[:len(bucket)-1]
	a.reuses++
	a.trackLocked(r)
	return r, nil
}

// track registers a freshly created resource as live.
func (a *Allocator) track(r Resource) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.trackLocked(r)
}

func (a *Allocator) trackLocked(r Resource) {
	a.live[r] = struct{}{}
	a.liveBytes += r.Desc().SizeBytes()
}

// Release returns a texture to the pool. Releasing a texture the allocator
// does not know, or releasing twice, is a no-op.
func (a *Allocator) Release(r Resource) {
	if r == nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.live[r]; !ok {
		return
	}
	delete(a.live, r)
	a.liveBytes -= r.Desc().SizeBytes()

	if a.closed {
		return
	}

	key := keyOf(r.Desc())
	bucket := a.buckets[key]
	if len(bucket) >= a.maxPerBucket {
		return
	}
	r.clear()
	a.buckets[key] = append(bucket, r)
}

// Stats returns current allocator statistics.
func (a *Allocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	pooled := 0
	for _, b := range a.buckets {
		pooled += len(b)
	}
	return Stats{
		LiveTextures:   len(a.live),
		LiveBytes:      a.liveBytes,
		PooledTextures: pooled,
		Allocations:    a.allocations,
		Reuses:         a.reuses,
	}
}

// Trim drops every pooled texture.
func (a *Allocator) Trim() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.buckets)
}

// Close drops the pool and rejects further allocations.
// Live textures stay valid until their owners drop them.
func (a *Allocator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	clear(a.buckets)
}

// Scope tracks the textures of one frame.
//
// Scope is not safe for concurrent use: the frame is built from a single
// goroutine even though the passes it records run in parallel.
type Scope struct {
	alloc  *Allocator
	name   string
	owned  []Resource
	allocs []Desc
	ended  bool
}

// Name returns the scope name.
func (s *Scope) Name() string { return s.name }

// Scalar allocates a scalar texture owned by the scope.
func (s *Scope) Scalar(desc Desc) (*Scalar, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	r, err := s.alloc.get(desc)
	if err != nil {
		return nil, err
	}
	t, ok := r.(*Scalar)
	if !ok {
		t, err = NewScalar(desc)
		if err != nil {
			return nil, err
		}
		s.alloc.track(t)
	}
	t.desc.Label = desc.Label
	t.desc.Usage = desc.Usage
	s.own(t)
	return t, nil
}

// RGBA allocates an RGBA texture owned by the scope.
func (s *Scope) RGBA(desc Desc) (*RGBA, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	r, err := s.alloc.get(desc)
	if err != nil {
		return nil, err
	}
	t, ok := r.(*RGBA)
	if !ok {
		t, err = NewRGBA(desc)
		if err != nil {
			return nil, err
		}
		s.alloc.track(t)
	}
	t.desc.Label = desc.Label
	t.desc.Usage = desc.Usage
	s.own(t)
	return t, nil
}

func (s *Scope) own(r Resource) {
	s.owned = append(s.owned, r)
	s.allocs = append(s.allocs, r.Desc())
}

// Extract takes r out of the scope so it survives End.
// The caller becomes responsible for releasing it.
func (s *Scope) Extract(r Resource) {
	for i, o := range s.owned {
		if o == r {
			s.owned = append(s.owned[:i], s.owned[i+1:]...)
			return
		}
	}
}

// Adopt hands a texture owned elsewhere to the scope; it is released at End,
// after every pass of the frame that reads it.
func (s *Scope) Adopt(r Resource) {
	if r == nil {
		return
	}
	s.owned = append(s.owned, r)
}

// Allocations returns the descriptors of every texture allocated by the scope.
func (s *Scope) Allocations() []Desc {
	return append([]Desc(nil), s.allocs...)
}

// End releases every texture still owned by the scope. Safe to call twice.
func (s *Scope) End() {
	if s.ended {
		return
	}
	s.ended = true
	for _, r := range s.owned {
		s.alloc.Release(r)
	}
	s.owned = nil
}
