package parallel

// DefaultGroupSize is the thread group edge used by every SSGI kernel.
const DefaultGroupSize = 8

// GroupCount returns ceil(n / size), the number of groups covering n threads.
func GroupCount(n, size int) int {
	if n <= 0 || size <= 0 {
		return 0
	}
	return (n + size - 1) / size
}

// Kernel is the per-thread body of a pass. x and y are the global thread
// coordinates; threads past the requested extent are never invoked.
type Kernel func(x, y int)

// Dispatcher runs kernels over 2D grids of thread groups.
type Dispatcher struct {
	pool     *WorkerPool
	ownsPool bool
}

// NewDispatcher creates a dispatcher with its own pool of workers.
// workers <= 0 uses GOMAXPROCS; workers == 1 runs kernels inline.
func NewDispatcher(workers int) *Dispatcher {
	if workers == 1 {
		return &Dispatcher{}
	}
	return &Dispatcher{pool: NewWorkerPool(workers), ownsPool: true}
}

// NewDispatcherWithPool creates a dispatcher on a shared pool.
// A nil pool runs kernels inline on the caller's goroutine.
func NewDispatcherWithPool(pool *WorkerPool) *Dispatcher {
	return &Dispatcher{pool: pool}
}

// Workers returns the number of goroutines kernels run on.
func (d *Dispatcher) Workers() int {
	if d.pool == nil {
		return 1
	}
	return d.pool.Workers()
}

// Dispatch runs kernel for every thread of a width x height grid using
// group x group thread groups, and returns when all groups are done.
// Returns the number of groups launched along each axis.
func (d *Dispatcher) Dispatch(width, height, group int, kernel Kernel) (groupsX, groupsY int) {
	if group <= 0 {
		group = DefaultGroupSize
	}
	groupsX = GroupCount(width, group)
	groupsY = GroupCount(height, group)
	if groupsX == 0 || groupsY == 0 {
		return 0, 0
	}

	row := func(gy int) {
		y0 := gy * group
		y1 := min(y0+group, height)
		for gx := range groupsX {
			x0 := gx * group
			x1 := min(x0+group, width)
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					kernel(x, y)
				}
			}
		}
	}

	if d.pool == nil {
		for gy := range groupsY {
			row(gy)
		}
		return groupsX, groupsY
	}

	d.pool.Run(groupsY, row)
	return groupsX, groupsY
}

// Close stops the dispatcher's own pool. Shared pools are left running.
func (d *Dispatcher) Close() {
	if d.ownsPool && d.pool != nil {
		d.pool.Close()
	}
}
