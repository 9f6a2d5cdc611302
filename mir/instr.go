package mir

import (
	"strings"

	"github.com/tetratelabs/fastalloc/target"
)

// Instr is a machine instruction. Operands are ordered: the allocator visits them in this order.
type Instr struct {
	Opcode   Opcode
	Operands []Operand
}

// NewInstr returns a new Instr.
func NewInstr(op Opcode, operands ...Operand) *Instr {
	return &Instr{Opcode: op, Operands: operands}
}

// NewSpill returns an instruction storing r to the stack slot. kill tells that r is dead after the store.
func NewSpill(r target.RealReg, slot FrameIndex, kill bool) *Instr {
	src := RealRegUse(r)
	src.kill = kill
	return NewInstr(OpcodeSpill, src, FrameRef(slot))
}

// NewReload returns an instruction loading r from the stack slot.
func NewReload(r target.RealReg, slot FrameIndex) *Instr {
	return NewInstr(OpcodeReload, RealRegDef(r), FrameRef(slot))
}

// IsTerminator returns true if this instruction ends a block.
func (i *Instr) IsTerminator() bool { return i.Opcode.IsTerminator() }

// IsReturn returns true if this instruction is a return instruction.
func (i *Instr) IsReturn() bool { return i.Opcode == OpcodeRet }

// IsCall returns true if this instruction is a call instruction.
func (i *Instr) IsCall() bool { return i.Opcode == OpcodeCall }

// HasVRegs returns true if any operand still references a virtual register.
func (i *Instr) HasVRegs() bool {
	for k := range i.Operands {
		if i.Operands[k].IsVReg() {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the instruction.
func (i *Instr) Clone() *Instr {
	return &Instr{Opcode: i.Opcode, Operands: append([]Operand(nil), i.Operands...)}
}

// String implements fmt.Stringer. Physical registers are printed by number; use Function.FormatInstr for names.
func (i *Instr) String() string { return i.format(nil) }

func (i *Instr) format(f *Function) string {
	var defs, rest []string
	for k := range i.Operands {
		op := &i.Operands[k]
		if op.IsDef() {
			defs = append(defs, op.format(f))
		} else {
			rest = append(rest, op.format(f))
		}
	}
	var buf strings.Builder
	if len(defs) > 0 {
		buf.WriteString(strings.Join(defs, ", "))
		buf.WriteString(" = ")
	}
	buf.WriteString(i.Opcode.String())
	if len(rest) > 0 {
		buf.WriteByte(' ')
		buf.WriteString(strings.Join(rest, ", "))
	}
	return buf.String()
}
