// Package regalloc implements a single-pass, block-local register allocator over mir functions.
//
// Each block is allocated in isolation: at block entry no virtual register is held in a physical register, and
// at block exit every resident virtual register is stored to its spill slot so that any successor can reload it.
// A virtual register keeps the same spill slot for the whole function.
package regalloc

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tetratelabs/fastalloc/mir"
	"github.com/tetratelabs/fastalloc/target"
)

var (
	// ErrRegClassExhausted is returned when every candidate of a register class is pinned by the instruction
	// being allocated or holds a physical value read by a later instruction.
	ErrRegClassExhausted = errors.New("register class exhausted")
	// ErrUnknownRegClass is returned when a virtual register has no register class.
	ErrUnknownRegClass = errors.New("virtual register has no register class")
	// ErrInvariant is returned when a consistency check of the allocator state fails.
	ErrInvariant = errors.New("register allocator invariant violated")
)

type (
	// Options configures an Allocator.
	Options struct {
		// Logger receives the per-block and per-spill trace at debug level. Nil discards it.
		Logger *logrus.Entry
		// SkipCleanSpills skips storing a value whose spill slot already holds it, i.e. a value reloaded
		// and not redefined since. When false every spill point stores unconditionally.
		SkipCleanSpills bool
		// Validate checks the allocator state after every instruction, and that no virtual register
		// remains once the function is allocated.
		Validate bool
	}

	// Stats are the counters of one DoAllocation.
	Stats struct {
		// Stores is the number of spill instructions inserted.
		Stores int
		// Loads is the number of reload instructions inserted.
		Loads int
		// Blocks is the number of allocated blocks.
		Blocks int
		// Instrs is the number of allocated instructions, inserted ones excluded.
		Instrs int
	}

	// Allocator is a register allocator. It can be reused across functions of the same target, but not
	// concurrently.
	Allocator struct {
		t     *target.Target
		opts  Options
		log   *logrus.Entry
		debug bool

		units unitTracker
		slots spillSlots
		live  liveState

		// f and frame are the function being allocated, and where its spill slots come from.
		f     *mir.Function
		frame FrameAllocator
		// pending holds the spills and reloads to insert before the instruction being allocated.
		pending []*mir.Instr
		// out is the rewritten instruction list of the block being allocated.
		out []*mir.Instr
		// afterTerminator is true while allocating the terminators of a block.
		afterTerminator bool
		usePins         []target.RealReg
		kills           []mir.VReg
		stats           Stats
	}
)

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Stores += o.Stores
	s.Loads += o.Loads
	s.Blocks += o.Blocks
	s.Instrs += o.Instrs
}

// NewAllocator returns a new Allocator for the target.
func NewAllocator(t *target.Target, opts Options) *Allocator {
	log := opts.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = logrus.NewEntry(l)
	}
	a := &Allocator{
		t:     t,
		opts:  opts,
		log:   log.WithField("target", t.Name()),
		debug: log.Logger.IsLevelEnabled(logrus.DebugLevel),
	}
	a.units.init(t)
	return a
}

// DoAllocation rewrites every virtual register operand of f into a physical register, inserting spills and
// reloads as needed. Blocks are allocated in layout order. On error f is left partially rewritten.
func (a *Allocator) DoAllocation(f *mir.Function) (Stats, error) {
	return a.allocate(f, &f.Frame)
}

func (a *Allocator) allocate(f *mir.Function, frame FrameAllocator) (Stats, error) {
	if f.Target != a.t {
		return Stats{}, errors.Errorf("function @%s is not for target %s", f.Name, a.t.Name())
	}
	a.f, a.frame = f, frame
	a.stats = Stats{}
	a.slots.reset(f.NumVRegs())
	a.live.grow(f.NumVRegs())
	defer func() {
		a.slots.reset(0)
		a.resetBlockState()
		a.f, a.frame = nil, nil
	}()

	log := a.log.WithField("func", f.Name)
	for _, b := range f.Blocks {
		a.resetBlockState()
		if err := a.allocateBlock(b); err != nil {
			return a.stats, errors.Wrapf(err, "@%s: bb.%d", f.Name, b.ID)
		}
		a.stats.Blocks++
	}

	if a.opts.Validate && f.HasVRegs() {
		return a.stats, errors.Wrapf(ErrInvariant, "@%s: virtual registers remain after allocation", f.Name)
	}
	if a.debug {
		log.WithFields(logrus.Fields{
			"stores": a.stats.Stores,
			"loads":  a.stats.Loads,
			"slots":  frameSlots(frame),
		}).Debug("allocated")
	}
	return a.stats, nil
}

// resetBlockState forgets everything but the spill slots.
func (a *Allocator) resetBlockState() {
	a.units.resetBlock()
	a.live.reset()
	a.pending = a.pending[:0]
	a.out = nil
	a.afterTerminator = false
}

// format returns the textual form of instr for error messages.
func (a *Allocator) format(instr *mir.Instr) string {
	if a.f != nil {
		return a.f.FormatInstr(instr)
	}
	return instr.String()
}

func (a *Allocator) String() string {
	return fmt.Sprintf("regalloc(%s): %s", a.t.Name(), a.live.format(a.t))
}
