// Package pool provides a free list of values whose addresses stay stable while they are in use.
package pool

const pageSize = 128

// Pool hands out *T carved from fixed-size pages. Values given back with Put are handed out again before a new
// one is carved. The zero value is ready to use.
type Pool[T any] struct {
	pages []*[pageSize]T
	free  []*T
	// carved is the number of values taken from pages since the last Reset.
	carved int
	inUse  int
}

// Get returns a zeroed *T.
func (p *Pool[T]) Get() *T {
	var ret *T
	if n := len(p.free); n > 0 {
		ret = p.free[n-1]
		p.free = p.free[:n-1]
	} else {
		page := p.carved / pageSize
		if page == len(p.pages) {
			p.pages = append(p.pages, new([pageSize]T))
		}
		ret = &p.pages[page][p.carved%pageSize]
		p.carved++
	}
	var zero T
	*ret = zero
	p.inUse++
	return ret
}

// Put gives v back. v must come from Get and must not be used afterwards.
func (p *Pool[T]) Put(v *T) {
	p.free = append(p.free, v)
	p.inUse--
}

// InUse returns the number of values returned by Get and not given back since the last Reset.
func (p *Pool[T]) InUse() int { return p.inUse }

// Reset gives every value back at once. Pages are kept for the next Get.
func (p *Pool[T]) Reset() {
	p.free = p.free[:0]
	p.carved = 0
	p.inUse = 0
}
