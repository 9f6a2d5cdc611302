// Package interp executes mir functions, before or after register allocation, so that the two can be compared.
//
// Values are 64 bits wide. A physical register is stored under its root register: reading a narrower register
// truncates, and writing one zero-extends. A call returns a hash of its symbol and arguments in its defs and
// poisons the registers of its clobber mask. Reading a poisoned or never written location is an error.
package interp

import (
	"hash/fnv"

	"github.com/pkg/errors"

	"github.com/tetratelabs/fastalloc/mir"
	"github.com/tetratelabs/fastalloc/target"
)

// DefaultStepLimit is the number of instructions Run executes before giving up.
const DefaultStepLimit = 1 << 20

var (
	// ErrUndefined is returned when a location is read before it is written.
	ErrUndefined = errors.New("read of an undefined value")
	// ErrClobbered is returned when a register is read after a call clobbered it.
	ErrClobbered = errors.New("read of a register clobbered by a call")
	// ErrStepLimit is returned when the step limit is reached.
	ErrStepLimit = errors.New("step limit reached")
	// ErrMalformed is returned for an instruction whose operands do not fit its opcode.
	ErrMalformed = errors.New("malformed instruction")
)

type location uint8

const (
	locUndefined location = iota
	locDefined
	locPoisoned
)

type value struct {
	v     uint64
	state location
}

type machine struct {
	f     *mir.Function
	t     *target.Target
	regs  []value
	vregs map[mir.VReg]value
	slots map[mir.FrameIndex]uint64
	steps int
}

// Run executes f from its first block. args are assigned to the live-ins of the first block in order. The
// returned values are the operands of the RET reached.
func Run(f *mir.Function, args ...uint64) ([]uint64, error) {
	return RunWithLimit(f, DefaultStepLimit, args...)
}

// RunWithLimit is like Run but stops after limit executed instructions.
func RunWithLimit(f *mir.Function, limit int, args ...uint64) ([]uint64, error) {
	if len(f.Blocks) == 0 {
		return nil, errors.Errorf("@%s has no blocks", f.Name)
	}
	m := &machine{
		f:     f,
		t:     f.Target,
		regs:  make([]value, f.Target.NumRegs()),
		vregs: map[mir.VReg]value{},
		slots: map[mir.FrameIndex]uint64{},
	}
	entry := f.Blocks[0]
	if len(args) != len(entry.LiveIns) {
		return nil, errors.Errorf("@%s takes %d arguments but got %d", f.Name, len(entry.LiveIns), len(args))
	}
	for i, r := range entry.LiveIns {
		m.writeReg(r, args[i])
	}

	bi := 0
	for {
		b := f.Blocks[bi]
		next := bi + 1
		for _, instr := range b.Instrs {
			if m.steps++; m.steps > limit {
				return nil, errors.Wrapf(ErrStepLimit, "@%s after %d instructions", f.Name, limit)
			}
			br, ret, done, err := m.exec(instr)
			if err != nil {
				return nil, errors.Wrapf(err, "@%s: bb.%d: %q", f.Name, b.ID, f.FormatInstr(instr))
			}
			if done {
				return ret, nil
			}
			if br >= 0 {
				next = f.BlockIndex(br)
				if next < 0 {
					return nil, errors.Wrapf(ErrMalformed, "@%s: branch to unknown bb.%d", f.Name, br)
				}
				break
			}
		}
		if next >= len(f.Blocks) {
			return nil, errors.Errorf("@%s: bb.%d falls off the end of the function", f.Name, b.ID)
		}
		bi = next
	}
}

// exec executes instr. It returns the ID of the block to branch to or -1, and the returned values if instr is
// a return.
func (m *machine) exec(instr *mir.Instr) (branch int, ret []uint64, done bool, err error) {
	branch = -1
	var defs []*mir.Operand
	var uses []uint64
	var imms []int64
	var mask target.RegSet
	var block = -1
	var sym string
	var slot = mir.FrameIndexInvalid
	for i := range instr.Operands {
		op := &instr.Operands[i]
		switch {
		case op.IsDef():
			defs = append(defs, op)
		case op.IsUse():
			var v uint64
			if v, err = m.read(op); err != nil {
				return
			}
			uses = append(uses, v)
		case op.Kind() == mir.OperandKindImm:
			imms = append(imms, op.Imm())
		case op.Kind() == mir.OperandKindRegMask:
			mask |= op.Mask()
		case op.Kind() == mir.OperandKindBlock:
			block = op.Block()
		case op.Kind() == mir.OperandKindSymbol:
			sym = op.Symbol()
		case op.Kind() == mir.OperandKindFrameIndex:
			slot = op.FrameIndex()
		}
	}

	malformed := func() error {
		return errors.Wrapf(ErrMalformed, "%s with %d defs and %d uses", instr.Opcode, len(defs), len(uses))
	}

	switch op := instr.Opcode; {
	case op == mir.OpcodeNop:
	case op == mir.OpcodeMovImm:
		if len(defs) != 1 || len(imms) != 1 {
			return branch, nil, false, malformed()
		}
		m.write(defs[0], uint64(imms[0]))
	case op == mir.OpcodeCopy:
		if len(defs) != 1 || len(uses) != 1 {
			return branch, nil, false, malformed()
		}
		m.write(defs[0], uses[0])
	case op.IsBinary():
		if len(imms) == 1 {
			uses = append(uses, uint64(imms[0]))
		}
		if len(defs) != 1 || len(uses) != 2 {
			return branch, nil, false, malformed()
		}
		m.write(defs[0], binary(op, uses[0], uses[1]))
	case op == mir.OpcodeBr:
		if block < 0 {
			return branch, nil, false, malformed()
		}
		branch = block
	case op == mir.OpcodeBrz:
		if block < 0 || len(uses) != 1 {
			return branch, nil, false, malformed()
		}
		if uses[0] == 0 {
			branch = block
		}
	case op == mir.OpcodeCall:
		h := fnv.New64a()
		h.Write([]byte(sym))
		for _, u := range uses {
			var buf [8]byte
			for i := range buf {
				buf[i] = byte(u >> (8 * i))
			}
			h.Write(buf[:])
		}
		result := h.Sum64()
		mask.Range(func(r target.RealReg) {
			if m.t.Valid(r) {
				m.regs[m.t.Root(r)] = value{state: locPoisoned}
			}
		})
		for i, d := range defs {
			m.write(d, result+uint64(i))
		}
	case op == mir.OpcodeRet:
		return branch, uses, true, nil
	case op == mir.OpcodeSpill:
		if len(uses) != 1 || slot == mir.FrameIndexInvalid {
			return branch, nil, false, malformed()
		}
		m.slots[slot] = uses[0]
	case op == mir.OpcodeReload:
		if len(defs) != 1 || slot == mir.FrameIndexInvalid {
			return branch, nil, false, malformed()
		}
		v, ok := m.slots[slot]
		if !ok {
			return branch, nil, false, errors.Wrapf(ErrUndefined, "%s", slot)
		}
		m.write(defs[0], v)
	default:
		return branch, nil, false, errors.Wrapf(ErrMalformed, "unknown opcode %s", op)
	}
	return branch, nil, false, nil
}

func binary(op mir.Opcode, a, b uint64) uint64 {
	switch op {
	case mir.OpcodeAdd:
		return a + b
	case mir.OpcodeSub:
		return a - b
	case mir.OpcodeMul:
		return a * b
	case mir.OpcodeAnd:
		return a & b
	case mir.OpcodeOr:
		return a | b
	case mir.OpcodeXor:
		return a ^ b
	}
	panic("BUG: not a binary opcode: " + op.String())
}

func (m *machine) read(op *mir.Operand) (uint64, error) {
	if op.IsRealReg() {
		return m.readReg(op.RealReg())
	}
	v := op.VReg()
	val, ok := m.vregs[v]
	if !ok {
		return 0, errors.Wrapf(ErrUndefined, "%s", v)
	}
	return truncate(val.v, m.vregBits(v, op.SubReg())), nil
}

func (m *machine) write(op *mir.Operand, v uint64) {
	if op.IsRealReg() {
		m.writeReg(op.RealReg(), v)
		return
	}
	m.vregs[op.VReg()] = value{v: truncate(v, m.vregBits(op.VReg(), op.SubReg())), state: locDefined}
}

func (m *machine) readReg(r target.RealReg) (uint64, error) {
	if !m.t.Valid(r) {
		return 0, errors.Wrapf(ErrMalformed, "invalid register %d", r)
	}
	val := m.regs[m.t.Root(r)]
	switch val.state {
	case locUndefined:
		return 0, errors.Wrapf(ErrUndefined, "$%s", m.t.RegName(r))
	case locPoisoned:
		return 0, errors.Wrapf(ErrClobbered, "$%s", m.t.RegName(r))
	}
	return truncate(val.v, m.t.Bits(r)), nil
}

func (m *machine) writeReg(r target.RealReg, v uint64) {
	m.regs[m.t.Root(r)] = value{v: truncate(v, m.t.Bits(r)), state: locDefined}
}

// vregBits returns the width of v viewed through sub. A virtual register without class is 64 bits wide.
func (m *machine) vregBits(v mir.VReg, sub target.SubRegIndex) uint {
	c := m.f.RegClassOf(v)
	if c == nil || len(c.Regs) == 0 {
		return 64
	}
	r := m.t.SubReg(c.Regs[0], sub)
	if r == target.RealRegInvalid {
		return m.t.Bits(c.Regs[0])
	}
	return m.t.Bits(r)
}

func truncate(v uint64, bits uint) uint64 {
	if bits == 0 || bits >= 64 {
		return v
	}
	return v & (1<<bits - 1)
}
