package regalloc

import (
	"github.com/tetratelabs/fastalloc/mir"
	"github.com/tetratelabs/fastalloc/target"
)

// allocateInstr allocates the operands of instr: every use first, then every def, so that a def can take the
// register a killed use of the same instruction vacates. The physical registers instr names explicitly are
// pinned before any virtual register is placed.
func (a *Allocator) allocateInstr(instr *mir.Instr) error {
	a.units.resetInstr()
	a.usePins = a.usePins[:0]
	a.kills = a.kills[:0]

	var clobbers target.RegSet
	for i := range instr.Operands {
		op := &instr.Operands[i]
		switch {
		case op.Kind() == mir.OperandKindRegMask:
			clobbers |= op.Mask()
		case op.IsRealReg():
			a.units.markUsed(op.RealReg())
			a.usePins = append(a.usePins, op.RealReg())
		}
	}

	for i := range instr.Operands {
		op := &instr.Operands[i]
		if !op.IsVReg() || !op.IsUse() {
			continue
		}
		v, kill := op.VReg(), op.IsKill()
		if err := a.allocateOperand(instr, op); err != nil {
			return err
		}
		if kill {
			a.kills = append(a.kills, v)
		} else if vr := a.live.lookup(v); vr != nil {
			a.usePins = append(a.usePins, vr.r)
		}
	}

	for _, v := range a.kills {
		if vr := a.live.lookup(v); vr != nil {
			a.live.retire(vr)
		}
	}

	if clobbers != 0 {
		if err := a.clobber(clobbers); err != nil {
			return err
		}
	}

	for i := range instr.Operands {
		if op := &instr.Operands[i]; op.IsRealReg() && op.IsDef() {
			if err := a.displace(instr, op.RealReg()); err != nil {
				return err
			}
		}
	}

	// Only the registers still needed by instr stay pinned while its defs are allocated.
	a.units.resetInstr()
	for _, r := range a.usePins {
		a.units.markUsedInInstr(r)
	}

	for i := range instr.Operands {
		op := &instr.Operands[i]
		if op.IsVReg() && op.IsDef() {
			if err := a.allocateOperand(instr, op); err != nil {
				return err
			}
		}
	}
	return nil
}

// displace evicts the resident values overlapping r, which instr overwrites. The store kills the register
// unless instr also reads it.
func (a *Allocator) displace(instr *mir.Instr, r target.RealReg) error {
	for _, vr := range a.live.overlapping(a.t, a.t.Units(r), nil) {
		if err := a.evict(vr, !a.reads([]*mir.Instr{instr}, vr.r)); err != nil {
			return err
		}
	}
	return nil
}

// clobber spills and retires every resident value whose register overlaps the clobber mask of a call.
func (a *Allocator) clobber(mask target.RegSet) error {
	units := a.t.UnitsOf(mask)
	for _, vr := range a.live.sorted() {
		if ru := a.t.Units(vr.r); !ru.Intersects(units) {
			continue
		}
		if a.debug {
			a.log.Debugf("%s in %s is clobbered by the call", vr.v, a.t.RegName(vr.r))
		}
		if err := a.spill(vr, false); err != nil {
			return err
		}
		a.live.retire(vr)
	}
	return nil
}
