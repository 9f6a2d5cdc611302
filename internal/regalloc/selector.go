package regalloc

import (
	"github.com/pkg/errors"

	"github.com/tetratelabs/fastalloc/mir"
	"github.com/tetratelabs/fastalloc/target"
)

// findPhysReg returns a physical register of the class of v to hold the operand op of instr.
//
// Candidates are scanned in class order three times: first for a register untouched in the block, then for
// one whose previous occupant is gone, and finally for one whose occupants can be evicted. Registers pinned by
// instr and registers holding a physical value that a later instruction reads are never taken. Eviction spills
// the occupants before instr.
func (a *Allocator) findPhysReg(instr *mir.Instr, op *mir.Operand, v mir.VReg) (target.RealReg, error) {
	c := a.f.RegClassOf(v)
	if c == nil {
		return target.RealRegInvalid, errors.Wrapf(ErrUnknownRegClass, "%s in %q", v, a.format(instr))
	}
	if len(c.Regs) == 0 {
		return target.RealRegInvalid, errors.Wrapf(target.ErrEmptyRegClass, "%s (%s) in %q", v, c.Name, a.format(instr))
	}

	for _, r := range c.Regs {
		if !a.units.isUsedInBlock(r) {
			return r, nil
		}
	}

	for _, r := range c.Regs {
		if a.evictable(r) && len(a.live.overlapping(a.t, a.t.Units(r), nil)) == 0 {
			return r, nil
		}
	}

	for _, r := range c.Regs {
		if !a.evictable(r) {
			continue
		}
		for _, vr := range a.live.overlapping(a.t, a.t.Units(r), nil) {
			if err := a.evict(vr, op.IsKill()); err != nil {
				return target.RealRegInvalid, err
			}
		}
		return r, nil
	}
	return target.RealRegInvalid, errors.Wrapf(ErrRegClassExhausted,
		"%s (%s) in %q: all of %d registers are in use by the instruction or hold a physical value read later",
		v, c.Name, a.format(instr), len(c.Regs))
}

func (a *Allocator) evictable(r target.RealReg) bool {
	return !a.units.isUsedInInstr(r) && !a.units.isReserved(r)
}

// evict spills vr before the current instruction and retires it.
func (a *Allocator) evict(vr *vrState, kill bool) error {
	if a.debug {
		a.log.Debugf("evicting %s from %s", vr.v, a.t.RegName(vr.r))
	}
	if err := a.spill(vr, kill); err != nil {
		return err
	}
	a.live.retire(vr)
	return nil
}

// spill stores the register of vr to the slot of vr before the current instruction. A clean value is not stored
// when Options.SkipCleanSpills is set.
func (a *Allocator) spill(vr *vrState, kill bool) error {
	if a.opts.SkipCleanSpills && !vr.dirty && a.slots.lookup(vr.v) != mir.FrameIndexInvalid {
		return nil
	}
	fi, err := a.slotFor(vr.v)
	if err != nil {
		return err
	}
	a.pending = append(a.pending, mir.NewSpill(vr.r, fi, kill))
	a.stats.Stores++
	vr.dirty = false
	return nil
}

// reload loads the slot of v into r before the current instruction.
func (a *Allocator) reload(v mir.VReg, r target.RealReg) error {
	fi, err := a.slotFor(v)
	if err != nil {
		return err
	}
	a.pending = append(a.pending, mir.NewReload(r, fi))
	a.stats.Loads++
	return nil
}
