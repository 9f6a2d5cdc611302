package regalloc

import (
	"github.com/tetratelabs/fastalloc/mir"
	"github.com/tetratelabs/fastalloc/target"
)

// unitTracker tracks the register units touched by the current instruction and by the current block.
// Working on units rather than registers makes two aliasing registers, e.g. r0 and its low half w0, conflict.
type unitTracker struct {
	t *target.Target
	// inInstr resets every instruction. inBlock accumulates over the block and is a superset of inInstr.
	inInstr, inBlock target.UnitSet
	// reserved are the units holding a physical value that an instruction after the current one reads: a
	// live-in or an explicit physical def not consumed yet, or a live-in of a successor. They are never handed
	// to a virtual register.
	reserved target.UnitSet
	// liveOut[i] is reserved while allocating the i-th instruction of the block.
	liveOut []target.UnitSet
}

func (u *unitTracker) init(t *target.Target) { u.t = t }

func (u *unitTracker) isUsedInInstr(r target.RealReg) bool { return u.inInstr.Intersects(u.t.Units(r)) }

func (u *unitTracker) isUsedInBlock(r target.RealReg) bool { return u.inBlock.Intersects(u.t.Units(r)) }

func (u *unitTracker) isReserved(r target.RealReg) bool { return u.reserved.Intersects(u.t.Units(r)) }

func (u *unitTracker) markUsedInInstr(r target.RealReg) { u.inInstr.Union(u.t.Units(r)) }

func (u *unitTracker) markUsedInBlock(r target.RealReg) { u.inBlock.Union(u.t.Units(r)) }

// markUsed marks r used both in the instruction and in the block.
func (u *unitTracker) markUsed(r target.RealReg) {
	u.markUsedInInstr(r)
	u.markUsedInBlock(r)
}

// scan marks every physical register instrs reference used in the block, and computes liveOut backwards from
// exit, the units read after the block.
func (u *unitTracker) scan(liveIns []target.RealReg, instrs []*mir.Instr, exit target.UnitSet) {
	for _, r := range liveIns {
		u.markUsedInBlock(r)
	}
	if cap(u.liveOut) < len(instrs) {
		u.liveOut = make([]target.UnitSet, len(instrs))
	}
	u.liveOut = u.liveOut[:len(instrs)]

	live := exit
	for i := len(instrs) - 1; i >= 0; i-- {
		u.liveOut[i] = live
		var defs, uses target.UnitSet
		for j := range instrs[i].Operands {
			op := &instrs[i].Operands[j]
			if !op.IsRealReg() {
				continue
			}
			u.markUsedInBlock(op.RealReg())
			if op.IsDef() {
				defs.Union(u.t.Units(op.RealReg()))
			} else {
				uses.Union(u.t.Units(op.RealReg()))
			}
		}
		live.Remove(defs)
		live.Union(uses)
	}
}

// startInstr resets the instruction state for the i-th instruction of the scanned block.
func (u *unitTracker) startInstr(i int) {
	u.inInstr.Reset()
	u.reserved = u.liveOut[i]
}

func (u *unitTracker) resetInstr() { u.inInstr.Reset() }

func (u *unitTracker) resetBlock() {
	u.inInstr.Reset()
	u.inBlock.Reset()
	u.reserved.Reset()
	u.liveOut = u.liveOut[:0]
}
