package regalloc

import "github.com/tetratelabs/fastalloc/mir"

// FrameAllocator hands out stack slots. A slot is never released: once returned it belongs to its virtual
// register until the function is fully allocated. *mir.Frame implements it.
type FrameAllocator interface {
	// NewSpillSlot returns a new slot of the given size and alignment in bytes.
	NewSpillSlot(size, align uint32) mir.FrameIndex
}

var _ FrameAllocator = (*mir.Frame)(nil)

type slotCounter interface {
	NumSlots() int
}

func frameSlots(f FrameAllocator) int {
	if c, ok := f.(slotCounter); ok {
		return c.NumSlots()
	}
	return -1
}
