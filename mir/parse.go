package mir

import (
	"bufio"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/tetratelabs/fastalloc/target"
)

// ErrSyntax is returned by Parse for malformed input. The message carries the line number.
var ErrSyntax = errors.New("syntax error")

// Parse parses the textual form of zero or more functions, as printed by Function.String.
//
// Lines are trimmed and anything after ';' is a comment. The grammar is:
//
//	func @name {
//	  stack %stack.N size S align A
//	bb.N: [liveins $reg, ...]
//	  [defs =] OPCODE [operands]
//	}
func Parse(src string, t *target.Target) ([]*Function, error) {
	p := &parser{t: t}
	sc := bufio.NewScanner(strings.NewReader(src))
	for sc.Scan() {
		p.line++
		if err := p.parseLine(sc.Text()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if p.fn != nil {
		return nil, p.errorf("missing '}' for function @%s", p.fn.Name)
	}
	return p.fns, nil
}

// ParseFunction is like Parse but requires exactly one function.
func ParseFunction(src string, t *target.Target) (*Function, error) {
	fns, err := Parse(src, t)
	if err != nil {
		return nil, err
	}
	if len(fns) != 1 {
		return nil, errors.Wrapf(ErrSyntax, "expected one function but got %d", len(fns))
	}
	return fns[0], nil
}

// MustParseFunction is like ParseFunction but panics on error.
func MustParseFunction(src string, t *target.Target) *Function {
	fn, err := ParseFunction(src, t)
	if err != nil {
		panic(err)
	}
	return fn
}

type parser struct {
	t    *target.Target
	line int
	fns  []*Function
	fn   *Function
	cur  *Block
	// refs records the lines of block and frame references so they can be checked when the function ends.
	blockRefs map[int]int
	frameRefs map[FrameIndex]int
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrSyntax, "line %d: "+format, append([]interface{}{p.line}, args...)...)
}

func (p *parser) parseLine(line string) error {
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	if p.fn == nil {
		if !strings.HasPrefix(line, "func ") || !strings.HasSuffix(line, "{") {
			return p.errorf("expected function header but got %q", line)
		}
		name := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(line, "func "), "{"))
		if !strings.HasPrefix(name, "@") || len(name) == 1 {
			return p.errorf("invalid function name %q", name)
		}
		p.fn = NewFunction(name[1:], p.t)
		p.cur = nil
		p.blockRefs = map[int]int{}
		p.frameRefs = map[FrameIndex]int{}
		return nil
	}

	switch {
	case line == "}":
		return p.endFunction()
	case strings.HasPrefix(line, "stack "):
		return p.parseStackSlot(line)
	case strings.HasPrefix(line, "bb."):
		if colon := strings.IndexByte(line, ':'); colon > 0 && !strings.Contains(line[:colon], " ") {
			return p.parseBlockHeader(line[:colon], strings.TrimSpace(line[colon+1:]))
		}
	}

	if p.cur == nil {
		return p.errorf("instruction outside of a block: %q", line)
	}
	instr, err := p.parseInstr(line)
	if err != nil {
		return err
	}
	p.cur.Instrs = append(p.cur.Instrs, instr)
	return nil
}

func (p *parser) endFunction() error {
	for id, line := range p.blockRefs {
		if p.fn.BlockByID(id) == nil {
			return errors.Wrapf(ErrSyntax, "line %d: reference to undefined block bb.%d", line, id)
		}
	}
	for fi, line := range p.frameRefs {
		if int(fi) >= p.fn.Frame.NumSlots() {
			return errors.Wrapf(ErrSyntax, "line %d: reference to undefined stack slot %s", line, fi)
		}
	}
	p.fns = append(p.fns, p.fn)
	p.fn, p.cur = nil, nil
	return nil
}

func (p *parser) parseStackSlot(line string) error {
	fields := strings.Fields(line)
	if len(fields) != 6 || fields[2] != "size" || fields[4] != "align" {
		return p.errorf("invalid stack slot %q", line)
	}
	fi, ok := parseFrameIndex(fields[1])
	if !ok || int(fi) != p.fn.Frame.NumSlots() {
		return p.errorf("stack slots must be declared in order: %q", fields[1])
	}
	size, err := strconv.ParseUint(fields[3], 10, 32)
	if err != nil {
		return p.errorf("invalid slot size %q", fields[3])
	}
	align, err := strconv.ParseUint(fields[5], 10, 32)
	if err != nil || align == 0 || align&(align-1) != 0 {
		return p.errorf("invalid slot alignment %q", fields[5])
	}
	p.fn.Frame.NewSpillSlot(uint32(size), uint32(align))
	return nil
}

func (p *parser) parseBlockHeader(label, rest string) error {
	id, err := strconv.Atoi(strings.TrimPrefix(label, "bb."))
	if err != nil || id < 0 {
		return p.errorf("invalid block label %q", label)
	}
	if p.fn.BlockByID(id) != nil {
		return p.errorf("duplicate block bb.%d", id)
	}
	b := &Block{ID: id}
	if rest != "" {
		if !strings.HasPrefix(rest, "liveins") {
			return p.errorf("unexpected %q after block label", rest)
		}
		for _, name := range splitOperands(strings.TrimPrefix(rest, "liveins")) {
			r, err := p.parseRealReg(name)
			if err != nil {
				return err
			}
			b.LiveIns = append(b.LiveIns, r)
		}
	}
	p.fn.Blocks = append(p.fn.Blocks, b)
	p.cur = b
	return nil
}

func (p *parser) parseInstr(line string) (*Instr, error) {
	var defs []string
	if eq := strings.IndexByte(line, '='); eq >= 0 {
		defs = splitOperands(line[:eq])
		if len(defs) == 0 {
			return nil, p.errorf("missing definitions before '='")
		}
		line = strings.TrimSpace(line[eq+1:])
	}
	name, rest := line, ""
	if sp := strings.IndexByte(line, ' '); sp >= 0 {
		name, rest = line[:sp], line[sp+1:]
	}
	op, ok := opcodeByName(name)
	if !ok {
		return nil, p.errorf("unknown opcode %q", name)
	}
	instr := &Instr{Opcode: op}
	for _, s := range defs {
		o, err := p.parseOperand(s, true)
		if err != nil {
			return nil, err
		}
		instr.Operands = append(instr.Operands, o)
	}
	for _, s := range splitOperands(rest) {
		o, err := p.parseOperand(s, false)
		if err != nil {
			return nil, err
		}
		instr.Operands = append(instr.Operands, o)
	}
	return instr, nil
}

func (p *parser) parseOperand(s string, def bool) (Operand, error) {
	var kill bool
	switch {
	case strings.HasPrefix(s, "killed "):
		if def {
			return Operand{}, p.errorf("'killed' on a definition: %q", s)
		}
		kill, s = true, strings.TrimSpace(s[len("killed "):])
	case strings.HasPrefix(s, "dead "):
		if !def {
			return Operand{}, p.errorf("'dead' on a use: %q", s)
		}
		kill, s = true, strings.TrimSpace(s[len("dead "):])
	}

	var o Operand
	switch {
	case strings.HasPrefix(s, "%stack."):
		fi, ok := parseFrameIndex(s)
		if !ok {
			return o, p.errorf("invalid stack slot %q", s)
		}
		p.frameRefs[fi] = p.line
		o = FrameRef(fi)
	case strings.HasPrefix(s, "%"):
		v, err := p.parseVReg(s[1:], def)
		if err != nil {
			return o, err
		}
		o = v
	case strings.HasPrefix(s, "$"):
		r, err := p.parseRealReg(s)
		if err != nil {
			return o, err
		}
		o = RealRegUse(r)
		o.def = def
	case strings.HasPrefix(s, "regmask(") && strings.HasSuffix(s, ")"):
		var mask target.RegSet
		for _, name := range splitOperands(s[len("regmask(") : len(s)-1]) {
			r, err := p.parseRealReg(name)
			if err != nil {
				return o, err
			}
			mask = mask.Add(r)
		}
		o = RegMask(mask)
	case strings.HasPrefix(s, "bb."):
		id, err := strconv.Atoi(s[3:])
		if err != nil {
			return o, p.errorf("invalid block reference %q", s)
		}
		p.blockRefs[id] = p.line
		o = BlockRef(id)
	case strings.HasPrefix(s, "@") && len(s) > 1:
		o = Symbol(s[1:])
	default:
		imm, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return o, p.errorf("invalid operand %q", s)
		}
		o = Imm(imm)
	}
	if def && !o.IsReg() {
		return o, p.errorf("definition of a non-register operand %q", s)
	}
	if kill && !o.IsReg() {
		return o, p.errorf("kill flag on a non-register operand %q", s)
	}
	o.kill = kill
	return o, nil
}

// parseVReg parses "N[.sub][:class]".
func (p *parser) parseVReg(s string, def bool) (Operand, error) {
	var className string
	if colon := strings.IndexByte(s, ':'); colon >= 0 {
		s, className = s[:colon], s[colon+1:]
	}
	var subName string
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		s, subName = s[:dot], s[dot+1:]
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil || VReg(n) == VRegInvalid {
		return Operand{}, p.errorf("invalid virtual register %%%s", s)
	}
	v := VReg(n)
	o := VRegUse(v)
	o.def = def
	if subName != "" {
		idx, ok := p.t.SubRegIndexByName(subName)
		if !ok || idx == target.NoSubReg {
			return o, p.errorf("unknown sub-register index %q", subName)
		}
		o.sub = idx
	}
	if className != "" {
		c, ok := p.t.ClassByName(className)
		if !ok {
			return o, p.errorf("unknown register class %q", className)
		}
		if prev := p.fn.RegClassOf(v); prev != nil && prev != c {
			return o, p.errorf("%s redeclared as %s but was %s", v, c.Name, prev.Name)
		}
		p.fn.SetRegClass(v, c)
	} else if int(v) >= p.fn.NumVRegs() {
		p.fn.SetRegClass(v, nil)
	}
	return o, nil
}

func (p *parser) parseRealReg(s string) (target.RealReg, error) {
	if !strings.HasPrefix(s, "$") {
		return target.RealRegInvalid, p.errorf("expected a physical register but got %q", s)
	}
	r, ok := p.t.RegByName(s[1:])
	if !ok {
		return target.RealRegInvalid, p.errorf("unknown register %q for target %s", s, p.t.Name())
	}
	return r, nil
}

func parseFrameIndex(s string) (FrameIndex, bool) {
	if !strings.HasPrefix(s, "%stack.") {
		return FrameIndexInvalid, false
	}
	n, err := strconv.ParseInt(s[len("%stack."):], 10, 32)
	if err != nil || n < 0 {
		return FrameIndexInvalid, false
	}
	return FrameIndex(n), true
}

// splitOperands splits a comma separated list, ignoring commas between parentheses.
func splitOperands(s string) (ret []string) {
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				if part := strings.TrimSpace(s[start:i]); part != "" {
					ret = append(ret, part)
				}
				start = i + 1
			}
		}
	}
	if part := strings.TrimSpace(s[start:]); part != "" {
		ret = append(ret, part)
	}
	return
}
