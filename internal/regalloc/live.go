package regalloc

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/tetratelabs/fastalloc/internal/pool"
	"github.com/tetratelabs/fastalloc/mir"
	"github.com/tetratelabs/fastalloc/target"
)

// vrState is the state of a virtual register resident in a physical register.
type vrState struct {
	v mir.VReg
	r target.RealReg
	// dirty is set by a def and cleared by a reload or a spill. A clean value equals its slot content.
	dirty bool
	// lateReload is set when the value was reloaded for a terminator of the block.
	lateReload bool
}

// regInUseSet maps a physical register to the virtual register it holds.
type regInUseSet [target.RealRegsNumMax]*vrState

func (rs *regInUseSet) reset() {
	for i := range rs {
		rs[i] = nil
	}
}

func (rs *regInUseSet) get(r target.RealReg) *vrState {
	if int(r) < len(rs) {
		return rs[r]
	}
	return nil
}

func (rs *regInUseSet) range_(f func(r target.RealReg, vr *vrState)) {
	for i, vr := range rs {
		if vr != nil {
			f(target.RealReg(i), vr)
		}
	}
}

// liveState is the bijection between the resident virtual registers and the physical registers holding them.
// resident[v] = s implies holder[s.r] = s, and the other way around.
type liveState struct {
	resident []*vrState
	holder   regInUseSet
	pool     pool.Pool[vrState]
	num      int
}

func (l *liveState) grow(numVRegs int) {
	for len(l.resident) < numVRegs {
		l.resident = append(l.resident, nil)
	}
}

func (l *liveState) reset() {
	l.holder.range_(func(_ target.RealReg, vr *vrState) {
		l.resident[vr.v] = nil
	})
	l.holder.reset()
	l.pool.Reset()
	l.num = 0
}

// lookup returns the state of v, or nil if v is not resident.
func (l *liveState) lookup(v mir.VReg) *vrState {
	if int(v) < len(l.resident) {
		return l.resident[v]
	}
	return nil
}

func (l *liveState) install(v mir.VReg, r target.RealReg) *vrState {
	l.grow(int(v) + 1)
	s := l.pool.Get()
	s.v, s.r = v, r
	l.resident[v] = s
	l.holder[r] = s
	l.num++
	return s
}

// retire forgets s, which must not be used afterwards.
func (l *liveState) retire(s *vrState) {
	l.resident[s.v] = nil
	l.holder[s.r] = nil
	l.num--
	l.pool.Put(s)
}

func (l *liveState) empty() bool { return l.num == 0 }

// overlapping returns the resident states whose register shares a unit with units, in ascending register order.
func (l *liveState) overlapping(t *target.Target, units target.UnitSet, ret []*vrState) []*vrState {
	l.holder.range_(func(r target.RealReg, vr *vrState) {
		if ru := t.Units(r); ru.Intersects(units) {
			ret = append(ret, vr)
		}
	})
	return ret
}

// sorted returns the resident states in ascending virtual register order.
func (l *liveState) sorted() []*vrState {
	ret := make([]*vrState, 0, l.num)
	l.holder.range_(func(_ target.RealReg, vr *vrState) {
		ret = append(ret, vr)
	})
	sort.Slice(ret, func(i, j int) bool { return ret[i].v < ret[j].v })
	return ret
}

// check verifies the bijection, and that no two resident registers alias.
func (l *liveState) check(t *target.Target) error {
	var used target.UnitSet
	n := 0
	var err error
	l.holder.range_(func(r target.RealReg, vr *vrState) {
		if err != nil {
			return
		}
		n++
		switch {
		case vr.r != r:
			err = errors.Wrapf(ErrInvariant, "%s is held by %s but records %s", vr.v, t.RegName(r), t.RegName(vr.r))
		case l.lookup(vr.v) != vr:
			err = errors.Wrapf(ErrInvariant, "%s is held by %s but not resident", vr.v, t.RegName(r))
		case used.Intersects(t.Units(r)):
			err = errors.Wrapf(ErrInvariant, "%s in %s aliases another resident register", vr.v, t.RegName(r))
		}
		used.Union(t.Units(r))
	})
	if err != nil {
		return err
	}
	for v, vr := range l.resident {
		if vr != nil && (vr.v != mir.VReg(v) || l.holder.get(vr.r) != vr) {
			return errors.Wrapf(ErrInvariant, "%s is resident in %s but not held", mir.VReg(v), t.RegName(vr.r))
		}
	}
	if n != l.num {
		return errors.Wrapf(ErrInvariant, "%d registers held but %d recorded", n, l.num)
	}
	if inUse := l.pool.InUse(); inUse != n {
		return errors.Wrapf(ErrInvariant, "%d registers held but %d states in use", n, inUse)
	}
	return nil
}

func (l *liveState) format(t *target.Target) string {
	var ret []string
	for _, vr := range l.sorted() {
		ret = append(ret, fmt.Sprintf("(%s->%s)", t.RegName(vr.r), vr.v))
	}
	return strings.Join(ret, ", ")
}
