package regalloc

import (
	"github.com/pkg/errors"

	"github.com/tetratelabs/fastalloc/mir"
)

// spillSlots maps virtual registers to their stack slot. It survives block boundaries and is cleared when the
// function is done.
type spillSlots struct {
	slots []mir.FrameIndex
}

func (s *spillSlots) reset(numVRegs int) {
	s.slots = s.slots[:0]
	for i := 0; i < numVRegs; i++ {
		s.slots = append(s.slots, mir.FrameIndexInvalid)
	}
}

// lookup returns the slot of v, or mir.FrameIndexInvalid if v has none.
func (s *spillSlots) lookup(v mir.VReg) mir.FrameIndex {
	if int(v) < len(s.slots) {
		return s.slots[v]
	}
	return mir.FrameIndexInvalid
}

func (s *spillSlots) set(v mir.VReg, fi mir.FrameIndex) {
	for int(v) >= len(s.slots) {
		s.slots = append(s.slots, mir.FrameIndexInvalid)
	}
	s.slots[v] = fi
}

// slotFor returns the slot of v, creating one sized for the class of v on first request.
func (a *Allocator) slotFor(v mir.VReg) (mir.FrameIndex, error) {
	if fi := a.slots.lookup(v); fi != mir.FrameIndexInvalid {
		return fi, nil
	}
	c := a.f.RegClassOf(v)
	if c == nil {
		return mir.FrameIndexInvalid, errors.Wrapf(ErrUnknownRegClass, "spill slot for %s", v)
	}
	fi := a.frame.NewSpillSlot(c.SpillSize, c.SpillAlign)
	a.slots.set(v, fi)
	if a.debug {
		a.log.Debugf("%s assigned to %s (%s)", v, fi, c.Name)
	}
	return fi, nil
}
