package regalloc

import (
	"github.com/pkg/errors"

	"github.com/tetratelabs/fastalloc/mir"
	"github.com/tetratelabs/fastalloc/target"
)

// allocateOperand rewrites the virtual register operand op of instr into a physical register.
//
// A resident value is used in place. Otherwise a register is selected and, for a use, the value is reloaded from
// its slot: it was stored there by the block that defined it. A def never reloads since sub-register writes
// zero-extend. Kills of uses are retired by the caller once every use of instr is allocated.
func (a *Allocator) allocateOperand(instr *mir.Instr, op *mir.Operand) error {
	v := op.VReg()
	if vr := a.live.lookup(v); vr != nil {
		if err := a.assign(instr, op, vr.r); err != nil {
			return err
		}
		if op.IsDef() {
			vr.dirty = true
			if op.IsKill() {
				a.live.retire(vr)
			}
		}
		return nil
	}

	r, err := a.findPhysReg(instr, op, v)
	if err != nil {
		return err
	}

	var reloaded bool
	if op.IsUse() {
		if fi := a.slots.lookup(v); fi == mir.FrameIndexInvalid && a.debug {
			a.log.Debugf("%s used before its definition in the block, reloading a slot yet to be stored", v)
		}
		if err := a.reload(v, r); err != nil {
			return err
		}
		reloaded = true
	}

	if err := a.assign(instr, op, r); err != nil {
		return err
	}

	if op.IsDef() && op.IsKill() {
		return nil
	}
	vr := a.live.install(v, r)
	vr.dirty = op.IsDef()
	vr.lateReload = reloaded && a.afterTerminator
	return nil
}

// assign rewrites op to r, projected on the sub-register of op, and marks r used.
func (a *Allocator) assign(instr *mir.Instr, op *mir.Operand, r target.RealReg) error {
	phys := a.t.SubReg(r, op.SubReg())
	if phys == target.RealRegInvalid {
		return errors.Wrapf(ErrInvariant, "%s in %q: %s has no sub-register %s",
			op.VReg(), a.format(instr), a.t.RegName(r), a.t.SubRegIndexName(op.SubReg()))
	}
	op.SetRealReg(phys)
	a.units.markUsed(r)
	return nil
}
