package mir

// StackSlot is a slot of a Frame.
type StackSlot struct {
	Size, Align uint32
	// Offset is the distance from the stack pointer, assigned by Frame.Layout.
	Offset int64
}

// Frame hands out stack slots. Slots are never released: a slot, once created, keeps its identity for the
// lifetime of the function.
type Frame struct {
	slots []StackSlot
}

// NewSpillSlot creates a new stack slot with the given size and alignment.
func (f *Frame) NewSpillSlot(size, align uint32) FrameIndex {
	f.slots = append(f.slots, StackSlot{Size: size, Align: align})
	return FrameIndex(len(f.slots) - 1)
}

// NumSlots returns the number of slots created so far.
func (f *Frame) NumSlots() int { return len(f.slots) }

// Slot returns the slot at the index.
func (f *Frame) Slot(fi FrameIndex) StackSlot { return f.slots[fi] }

// Layout assigns offsets to the slots in creation order and returns the frame size, a multiple of 16.
func (f *Frame) Layout() (size int64) {
	for i := range f.slots {
		s := &f.slots[i]
		align := int64(s.Align)
		if align == 0 {
			align = 1
		}
		size = (size + align - 1) &^ (align - 1)
		s.Offset = size
		size += int64(s.Size)
	}
	return (size + 15) &^ 15
}
