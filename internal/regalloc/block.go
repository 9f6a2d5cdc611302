package regalloc

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tetratelabs/fastalloc/mir"
	"github.com/tetratelabs/fastalloc/target"
)

// allocateBlock allocates b in three steps: scanning the physical registers b references, allocating every
// instruction in order, and storing the values still resident before the first terminator.
func (a *Allocator) allocateBlock(b *mir.Block) error {
	if a.debug {
		a.log.WithFields(logrus.Fields{"func": a.f.Name, "block": b.ID}).Debug("allocating block")
	}
	a.scanBlock(b)

	first := b.FirstTerminator()
	out := make([]*mir.Instr, 0, len(b.Instrs))
	for i, instr := range b.Instrs {
		a.afterTerminator = i >= first
		a.pending = a.pending[:0]
		a.units.startInstr(i)
		if err := a.allocateInstr(instr); err != nil {
			return err
		}
		if a.opts.Validate {
			if err := a.live.check(a.t); err != nil {
				return errors.Wrapf(err, "after %q", a.format(instr))
			}
		}
		out = append(out, a.pending...)
		out = append(out, instr)
		a.stats.Instrs++
	}
	a.out = out

	if !b.IsReturnBlock() {
		if err := a.finalizeBlock(); err != nil {
			return err
		}
	}
	b.Instrs = a.out
	return nil
}

// scanBlock marks the live-ins of b and every physical register an instruction of b references used in the
// block, and computes which physical values each instruction must leave intact.
func (a *Allocator) scanBlock(b *mir.Block) {
	a.units.scan(b.LiveIns, b.Instrs, a.exitUnits(b))
}

// exitUnits returns the units of the live-ins of the blocks b branches or falls through to.
func (a *Allocator) exitUnits(b *mir.Block) (ret target.UnitSet) {
	add := func(succ *mir.Block) {
		if succ == nil {
			return
		}
		for _, r := range succ.LiveIns {
			ret.Union(a.t.Units(r))
		}
	}
	for _, instr := range b.Instrs {
		for i := range instr.Operands {
			if op := &instr.Operands[i]; op.Kind() == mir.OperandKindBlock {
				add(a.f.BlockByID(op.Block()))
			}
		}
	}
	if !b.IsReturnBlock() {
		if next := a.f.BlockIndex(b.ID) + 1; next > 0 && next < len(a.f.Blocks) {
			add(a.f.Blocks[next])
		}
	}
	return
}

// finalizeBlock stores every resident value to its slot before the first terminator so that successors can
// reload it. Values reloaded for a terminator are already in their slot and are skipped. A store only kills its
// register when no terminator reads it.
func (a *Allocator) finalizeBlock() error {
	a.pending = a.pending[:0]
	first := mir.FirstTerminator(a.out)
	for _, vr := range a.live.sorted() {
		if vr.lateReload && !vr.dirty {
			continue
		}
		if err := a.spill(vr, !a.reads(a.out[first:], vr.r)); err != nil {
			return err
		}
	}
	if len(a.pending) > 0 {
		if a.debug {
			a.log.Debugf("storing %d values at block exit", len(a.pending))
		}
		a.out = mir.InsertBefore(a.out, first, a.pending...)
	}
	return nil
}

// reads returns true if an instruction of instrs reads a register overlapping r.
func (a *Allocator) reads(instrs []*mir.Instr, r target.RealReg) bool {
	units := a.t.Units(r)
	for _, instr := range instrs {
		for i := range instr.Operands {
			op := &instr.Operands[i]
			if op.IsRealReg() && op.IsUse() && units.Intersects(a.t.Units(op.RealReg())) {
				return true
			}
		}
	}
	return false
}
