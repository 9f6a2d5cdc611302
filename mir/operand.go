package mir

import (
	"fmt"
	"strconv"

	"github.com/tetratelabs/fastalloc/target"
)

// OperandKind is the kind of an Operand.
type OperandKind byte

const (
	OperandKindInvalid OperandKind = iota
	// OperandKindVReg is a virtual register reference.
	OperandKindVReg
	// OperandKindRealReg is a physical register reference.
	OperandKindRealReg
	// OperandKindRegMask is the set of physical registers clobbered by a call.
	OperandKindRegMask
	// OperandKindImm is an immediate.
	OperandKindImm
	// OperandKindFrameIndex references a stack slot.
	OperandKindFrameIndex
	// OperandKindBlock references a block by its ID.
	OperandKindBlock
	// OperandKindSymbol references a symbol, e.g. a call target.
	OperandKindSymbol
)

// Operand is one operand of an Instr. The zero value is invalid.
type Operand struct {
	kind OperandKind
	def  bool
	// kill on a use marks the last use of the register. On a def, it marks a dead definition.
	kill bool
	sub  target.SubRegIndex
	v    VReg
	r    target.RealReg
	mask target.RegSet
	imm  int64
	sym  string
}

// VRegUse returns an operand reading v.
func VRegUse(v VReg) Operand { return Operand{kind: OperandKindVReg, v: v} }

// VRegDef returns an operand writing v.
func VRegDef(v VReg) Operand { return Operand{kind: OperandKindVReg, v: v, def: true} }

// RealRegUse returns an operand reading r.
func RealRegUse(r target.RealReg) Operand { return Operand{kind: OperandKindRealReg, r: r} }

// RealRegDef returns an operand writing r.
func RealRegDef(r target.RealReg) Operand { return Operand{kind: OperandKindRealReg, r: r, def: true} }

// RegMask returns a clobber mask operand.
func RegMask(m target.RegSet) Operand { return Operand{kind: OperandKindRegMask, mask: m} }

// Imm returns an immediate operand.
func Imm(v int64) Operand { return Operand{kind: OperandKindImm, imm: v} }

// FrameRef returns an operand referencing a stack slot.
func FrameRef(fi FrameIndex) Operand { return Operand{kind: OperandKindFrameIndex, imm: int64(fi)} }

// BlockRef returns an operand referencing the block with the given ID.
func BlockRef(id int) Operand { return Operand{kind: OperandKindBlock, imm: int64(id)} }

// Symbol returns an operand referencing a symbol.
func Symbol(name string) Operand { return Operand{kind: OperandKindSymbol, sym: name} }

// Killed returns a copy of the operand flagged as the last use (or as a dead def).
func (o Operand) Killed() Operand {
	o.kill = true
	return o
}

// WithSubReg returns a copy of the operand viewed through the sub-register index.
func (o Operand) WithSubReg(idx target.SubRegIndex) Operand {
	o.sub = idx
	return o
}

// Kind returns the kind of the operand.
func (o *Operand) Kind() OperandKind { return o.kind }

// IsReg returns true if the operand references a virtual or physical register.
func (o *Operand) IsReg() bool { return o.kind == OperandKindVReg || o.kind == OperandKindRealReg }

// IsVReg returns true if the operand references a virtual register.
func (o *Operand) IsVReg() bool { return o.kind == OperandKindVReg }

// IsRealReg returns true if the operand references a physical register.
func (o *Operand) IsRealReg() bool { return o.kind == OperandKindRealReg }

// IsDef returns true if the operand is a register written by the instruction.
func (o *Operand) IsDef() bool { return o.IsReg() && o.def }

// IsUse returns true if the operand is a register read by the instruction.
func (o *Operand) IsUse() bool { return o.IsReg() && !o.def }

// IsKill returns true if the operand is the last use of its register, or a dead def.
func (o *Operand) IsKill() bool { return o.kill }

// SubReg returns the sub-register index of the operand, target.NoSubReg for the whole register.
func (o *Operand) SubReg() target.SubRegIndex { return o.sub }

// VReg returns the virtual register of an OperandKindVReg operand.
func (o *Operand) VReg() VReg { return o.v }

// RealReg returns the physical register of an OperandKindRealReg operand.
func (o *Operand) RealReg() target.RealReg { return o.r }

// Mask returns the registers of an OperandKindRegMask operand.
func (o *Operand) Mask() target.RegSet { return o.mask }

// Imm returns the value of an OperandKindImm operand.
func (o *Operand) Imm() int64 { return o.imm }

// FrameIndex returns the slot of an OperandKindFrameIndex operand.
func (o *Operand) FrameIndex() FrameIndex { return FrameIndex(o.imm) }

// Block returns the block ID of an OperandKindBlock operand.
func (o *Operand) Block() int { return int(o.imm) }

// Symbol returns the name of an OperandKindSymbol operand.
func (o *Operand) Symbol() string { return o.sym }

// SetRealReg rewrites a register operand to reference the physical register r directly.
// The sub-register annotation is cleared since r already is the register to access. Flags are kept.
func (o *Operand) SetRealReg(r target.RealReg) {
	o.kind = OperandKindRealReg
	o.r = r
	o.v = 0
	o.sub = target.NoSubReg
}

// SetKill sets or clears the kill flag.
func (o *Operand) SetKill(kill bool) { o.kill = kill }

// format returns the textual form of the operand. f may be nil.
func (o *Operand) format(f *Function) string {
	var prefix string
	if o.kill {
		if o.def {
			prefix = "dead "
		} else {
			prefix = "killed "
		}
	}
	switch o.kind {
	case OperandKindVReg:
		s := prefix + o.v.String()
		if o.sub != target.NoSubReg {
			s += "." + subRegName(f, o.sub)
		}
		if o.def && f != nil {
			if c := f.RegClassOf(o.v); c != nil {
				s += ":" + c.Name
			}
		}
		return s
	case OperandKindRealReg:
		return prefix + "$" + regName(f, o.r)
	case OperandKindRegMask:
		if f == nil || f.Target == nil {
			return fmt.Sprintf("regmask(%#x)", uint64(o.mask))
		}
		return "regmask(" + f.Target.FormatRegSet(o.mask) + ")"
	case OperandKindImm:
		return strconv.FormatInt(o.imm, 10)
	case OperandKindFrameIndex:
		return o.FrameIndex().String()
	case OperandKindBlock:
		return fmt.Sprintf("bb.%d", o.imm)
	case OperandKindSymbol:
		return "@" + o.sym
	default:
		return "<invalid>"
	}
}

func regName(f *Function, r target.RealReg) string {
	if f == nil || f.Target == nil {
		return fmt.Sprintf("%d", r)
	}
	return f.Target.RegName(r)
}

func subRegName(f *Function, idx target.SubRegIndex) string {
	if f == nil || f.Target == nil {
		return fmt.Sprintf("sub%d", idx)
	}
	return f.Target.SubRegIndexName(idx)
}
