package mir

import (
	"fmt"
	"strings"

	"github.com/tetratelabs/fastalloc/target"
)

// Block is a basic block: an ordered list of instructions, optionally ending with terminators.
type Block struct {
	// ID is unique in the Function and is what OperandKindBlock references.
	ID int
	// LiveIns are the physical registers holding valid values at block entry.
	LiveIns []target.RealReg
	Instrs  []*Instr
}

// Append appends instructions at the end of the block.
func (b *Block) Append(instrs ...*Instr) *Block {
	b.Instrs = append(b.Instrs, instrs...)
	return b
}

// FirstTerminator returns the index of the first terminator of the block, or len(b.Instrs) if there is none.
func (b *Block) FirstTerminator() int {
	return FirstTerminator(b.Instrs)
}

// IsReturnBlock returns true if the last instruction of the block is a return.
func (b *Block) IsReturnBlock() bool {
	return len(b.Instrs) > 0 && b.Instrs[len(b.Instrs)-1].IsReturn()
}

// FirstTerminator returns the index of the first terminator in instrs, or len(instrs) if there is none.
func FirstTerminator(instrs []*Instr) int {
	for i, instr := range instrs {
		if instr.IsTerminator() {
			return i
		}
	}
	return len(instrs)
}

// InsertBefore inserts ins in front of instrs[at] and returns the updated slice.
func InsertBefore(instrs []*Instr, at int, ins ...*Instr) []*Instr {
	if len(ins) == 0 {
		return instrs
	}
	instrs = append(instrs, ins...)
	copy(instrs[at+len(ins):], instrs[at:len(instrs)-len(ins)])
	copy(instrs[at:], ins)
	return instrs
}

// Function is a machine function: an ordered list of blocks sharing virtual registers and a Frame.
type Function struct {
	Name   string
	Target *target.Target
	Blocks []*Block
	Frame  Frame

	classes []*target.RegClass
}

// NewFunction returns an empty Function for the target.
func NewFunction(name string, t *target.Target) *Function {
	return &Function{Name: name, Target: t}
}

// NewVReg returns a fresh virtual register of the given class.
func (f *Function) NewVReg(c *target.RegClass) VReg {
	v := VReg(len(f.classes))
	f.classes = append(f.classes, c)
	return v
}

// SetRegClass sets the class of v, growing the table if needed.
func (f *Function) SetRegClass(v VReg, c *target.RegClass) {
	if int(v) >= len(f.classes) {
		f.classes = append(f.classes, make([]*target.RegClass, int(v)+1-len(f.classes))...)
	}
	f.classes[v] = c
}

// RegClassOf returns the class of v, or nil when v has none.
func (f *Function) RegClassOf(v VReg) *target.RegClass {
	if int(v) < len(f.classes) {
		return f.classes[v]
	}
	return nil
}

// NumVRegs returns one plus the largest known VReg.
func (f *Function) NumVRegs() int { return len(f.classes) }

// NewBlock appends a new block whose ID is its position.
func (f *Function) NewBlock(liveIns ...target.RealReg) *Block {
	b := &Block{ID: len(f.Blocks), LiveIns: liveIns}
	f.Blocks = append(f.Blocks, b)
	return b
}

// BlockByID returns the block with the given ID, or nil.
func (f *Function) BlockByID(id int) *Block {
	for _, b := range f.Blocks {
		if b.ID == id {
			return b
		}
	}
	return nil
}

// BlockIndex returns the layout position of the block with the given ID, or -1.
func (f *Function) BlockIndex(id int) int {
	for i, b := range f.Blocks {
		if b.ID == id {
			return i
		}
	}
	return -1
}

// HasVRegs returns true if any instruction still references a virtual register.
func (f *Function) HasVRegs() bool {
	for _, b := range f.Blocks {
		for _, instr := range b.Instrs {
			if instr.HasVRegs() {
				return true
			}
		}
	}
	return false
}

// Clone returns a deep copy of the function.
func (f *Function) Clone() *Function {
	ret := &Function{
		Name:    f.Name,
		Target:  f.Target,
		Frame:   Frame{slots: append([]StackSlot(nil), f.Frame.slots...)},
		classes: append([]*target.RegClass(nil), f.classes...),
	}
	for _, b := range f.Blocks {
		nb := &Block{ID: b.ID, LiveIns: append([]target.RealReg(nil), b.LiveIns...)}
		for _, instr := range b.Instrs {
			nb.Instrs = append(nb.Instrs, instr.Clone())
		}
		ret.Blocks = append(ret.Blocks, nb)
	}
	return ret
}

// FormatInstr returns the textual form of an instruction of this function.
func (f *Function) FormatInstr(instr *Instr) string { return instr.format(f) }

// String implements fmt.Stringer. The output is accepted by Parse.
func (f *Function) String() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "func @%s {\n", f.Name)
	for i, s := range f.Frame.slots {
		fmt.Fprintf(&buf, "  stack %s size %d align %d\n", FrameIndex(i), s.Size, s.Align)
	}
	for _, b := range f.Blocks {
		fmt.Fprintf(&buf, "bb.%d:", b.ID)
		if len(b.LiveIns) > 0 {
			names := make([]string, len(b.LiveIns))
			for i, r := range b.LiveIns {
				names[i] = "$" + regName(f, r)
			}
			buf.WriteString(" liveins " + strings.Join(names, ", "))
		}
		buf.WriteByte('\n')
		for _, instr := range b.Instrs {
			buf.WriteString("  ")
			buf.WriteString(instr.format(f))
			buf.WriteByte('\n')
		}
	}
	buf.WriteString("}\n")
	return buf.String()
}
