package interp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/fastalloc/mir"
	"github.com/tetratelabs/fastalloc/target/toy"
)

var toy4 = toy.MustNew(4)

func TestRun(t *testing.T) {
	for _, tc := range []struct {
		name string
		src  string
		args []uint64
		exp  []uint64
	}{
		{
			name: "arithmetic",
			src: `
func @f {
bb.0: liveins $r0, $r1
  %0:gpr = COPY $r0
  %1:gpr = ADD %0, $r1
  %2:gpr = MUL killed %1, 3
  %3:gpr = SUB %2, 1
  %4:gpr = XOR %3, %0
  %5:gpr = AND %4, 0xff
  %6:gpr = OR %5, 0x100
  RET %2, %6
}`,
			args: []uint64{2, 5},
			exp:  []uint64{21, (20 ^ 2) | 0x100},
		},
		{
			name: "loop",
			src: `
func @sum {
bb.0: liveins $r0
  %0:gpr = COPY $r0
  %1:gpr = MOVI 0
bb.1:
  %1:gpr = ADD %1, %0
  %0:gpr = SUB %0, 1
  BRZ %0, bb.2
  BR bb.1
bb.2:
  RET %1
}`,
			args: []uint64{10},
			exp:  []uint64{55},
		},
		{
			name: "sub-registers",
			src: `
func @f {
bb.0: liveins $r0
  $r1 = MOVI -1
  %0:gpr32 = COPY $w1
  %1:gpr = COPY $r0
  %1.sub32:gpr = COPY %0
  RET %0, %1, $r1, $w1
}`,
			args: []uint64{7},
			exp:  []uint64{0xffffffff, 0xffffffff, 0xffffffffffffffff, 0xffffffff},
		},
		{
			name: "physical sub-register write zero-extends",
			src: `
func @f {
bb.0:
  $r2 = MOVI -1
  $w2 = MOVI 1
  RET $r2
}`,
			exp: []uint64{1},
		},
		{
			name: "spill and reload",
			src: `
func @f {
  stack %stack.0 size 8 align 8
bb.0: liveins $r0
  SPILL killed $r0, %stack.0
  $r3 = RELOAD %stack.0
  RET $r3
}`,
			args: []uint64{42},
			exp:  []uint64{42},
		},
		{
			name: "fall through",
			src: `
func @f {
bb.0:
  %0:gpr = MOVI 1
bb.1:
  RET %0
}`,
			exp: []uint64{1},
		},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			f, err := mir.ParseFunction(tc.src, toy4)
			require.NoError(t, err)
			actual, err := Run(f, tc.args...)
			require.NoError(t, err)
			require.Equal(t, tc.exp, actual)
		})
	}
}

func TestRun_call(t *testing.T) {
	f := mir.MustParseFunction(`
func @f {
bb.0: liveins $r0
  $r0 = CALL @g, $r0, regmask($r0, $r1, $w0, $w1)
  RET $r0
}`, toy4)
	a, err := Run(f, 1)
	require.NoError(t, err)
	b, err := Run(f, 2)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
	again, err := Run(f, 1)
	require.NoError(t, err)
	require.Equal(t, a, again)
}

func TestRun_errors(t *testing.T) {
	for _, tc := range []struct {
		name   string
		src    string
		args   []uint64
		expErr error
	}{
		{
			name: "undefined vreg",
			src: `
func @f {
bb.0:
  RET %0
}`,
			expErr: ErrUndefined,
		},
		{
			name: "undefined register",
			src: `
func @f {
bb.0:
  RET $r2
}`,
			expErr: ErrUndefined,
		},
		{
			name: "unwritten slot",
			src: `
func @f {
  stack %stack.0 size 8 align 8
bb.0:
  $r0 = RELOAD %stack.0
  RET $r0
}`,
			expErr: ErrUndefined,
		},
		{
			name: "clobbered",
			src: `
func @f {
bb.0: liveins $r1
  CALL @g, regmask($r0, $r1, $w0, $w1)
  RET $w1
}`,
			args:   []uint64{1},
			expErr: ErrClobbered,
		},
		{
			name: "infinite loop",
			src: `
func @f {
bb.0:
  BR bb.0
}`,
			expErr: ErrStepLimit,
		},
		{
			name: "malformed",
			src: `
func @f {
bb.0:
  %0:gpr = MOVI
}`,
			expErr: ErrMalformed,
		},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			f, err := mir.ParseFunction(tc.src, toy4)
			require.NoError(t, err)
			_, err = RunWithLimit(f, 100, tc.args...)
			require.ErrorIs(t, err, tc.expErr)
		})
	}
}

func TestRun_arguments(t *testing.T) {
	f := mir.MustParseFunction("func @f {\nbb.0: liveins $r0\n  RET $r0\n}", toy4)
	_, err := Run(f)
	require.Error(t, err)
}
