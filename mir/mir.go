// Package mir is the machine-level instruction stream the register allocator rewrites.
//
// A Function is an ordered list of Block(s), each holding an ordered list of Instr(s). An Instr has an Opcode
// and an ordered list of Operand(s). Register operands reference either a virtual register (VReg), which has a
// register class and may be viewed through a sub-register index, or a physical register (target.RealReg).
// Calls carry a clobber mask operand listing the physical registers the callee may destroy.
//
// The package also provides the frame (Frame), which hands out spill slots, and a textual form:
//
//	func @add {
//	bb.0: liveins $r0
//	  %0:gpr = MOVI 1
//	  %1:gpr = ADD killed %0, $r0
//	  RET killed %1
//	}
package mir

import "fmt"

// VReg is a virtual register: an abstract, infinite-supply storage location.
type VReg uint32

// VRegInvalid is the invalid VReg.
const VRegInvalid = ^VReg(0)

// String implements fmt.Stringer.
func (v VReg) String() string {
	if v == VRegInvalid {
		return "%invalid"
	}
	return fmt.Sprintf("%%%d", uint32(v))
}

// FrameIndex identifies a stack slot of a Frame.
type FrameIndex int32

// FrameIndexInvalid is the invalid FrameIndex.
const FrameIndexInvalid FrameIndex = -1

// String implements fmt.Stringer.
func (fi FrameIndex) String() string {
	return fmt.Sprintf("%%stack.%d", int32(fi))
}

// Opcode is the operation of an Instr.
type Opcode byte

const (
	OpcodeInvalid Opcode = iota
	// OpcodeNop does nothing.
	OpcodeNop
	// OpcodeMovImm defines its register with an immediate: `d = MOVI imm`.
	OpcodeMovImm
	// OpcodeCopy copies a register: `d = COPY s`.
	OpcodeCopy
	// OpcodeAdd and the following binary operations take two sources: `d = ADD a, b`. b may be an immediate.
	OpcodeAdd
	OpcodeSub
	OpcodeMul
	OpcodeAnd
	OpcodeOr
	OpcodeXor
	// OpcodeBr unconditionally branches: `BR bb.N`.
	OpcodeBr
	// OpcodeBrz branches if its register is zero, otherwise falls through: `BRZ c, bb.N`.
	OpcodeBrz
	// OpcodeCall calls a symbol: `$r0 = CALL @f, $r0, regmask($r0, $r1)`.
	OpcodeCall
	// OpcodeRet returns the values of its registers: `RET a, b`.
	OpcodeRet
	// OpcodeSpill stores a register to a stack slot: `SPILL killed $r0, %stack.0`.
	OpcodeSpill
	// OpcodeReload loads a register from a stack slot: `$r0 = RELOAD %stack.0`.
	OpcodeReload
	opcodeEnd
)

var opcodeNames = [opcodeEnd]string{
	OpcodeInvalid: "INVALID",
	OpcodeNop:     "NOP",
	OpcodeMovImm:  "MOVI",
	OpcodeCopy:    "COPY",
	OpcodeAdd:     "ADD",
	OpcodeSub:     "SUB",
	OpcodeMul:     "MUL",
	OpcodeAnd:     "AND",
	OpcodeOr:      "OR",
	OpcodeXor:     "XOR",
	OpcodeBr:      "BR",
	OpcodeBrz:     "BRZ",
	OpcodeCall:    "CALL",
	OpcodeRet:     "RET",
	OpcodeSpill:   "SPILL",
	OpcodeReload:  "RELOAD",
}

// String implements fmt.Stringer.
func (o Opcode) String() string {
	if o < opcodeEnd {
		return opcodeNames[o]
	}
	return fmt.Sprintf("OPCODE(%d)", byte(o))
}

// IsBinary returns true for the two-source arithmetic and logic opcodes.
func (o Opcode) IsBinary() bool { return o >= OpcodeAdd && o <= OpcodeXor }

// IsTerminator returns true if the opcode ends a block.
func (o Opcode) IsTerminator() bool {
	return o == OpcodeBr || o == OpcodeBrz || o == OpcodeRet
}

func opcodeByName(name string) (Opcode, bool) {
	for i := OpcodeNop; i < opcodeEnd; i++ {
		if opcodeNames[i] == name {
			return i, true
		}
	}
	return OpcodeInvalid, false
}
