package fastalloc

import (
	"context"
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/fastalloc/internal/interp"
	"github.com/tetratelabs/fastalloc/internal/metrics"
	"github.com/tetratelabs/fastalloc/internal/regalloc"
	"github.com/tetratelabs/fastalloc/mir"
	"github.com/tetratelabs/fastalloc/target/toy"
)

var (
	toy1 = toy.MustNew(1)
	toy2 = toy.MustNew(2)
	toy4 = toy.MustNew(4)
)

const twoRegisters = `
func @f {
bb.0:
  %0:gpr = MOVI 1
  %1:gpr = MOVI 2
  %2:gpr = ADD killed %0, killed %1
  RET killed %2
}`

const exhausting = `
func @g {
bb.0:
  %0:gpr = MOVI 1
  %1:gpr = MOVI 2
  %2:gpr = ADD killed %0, killed %1
  RET killed %2
}`

const withLiveIns = `
func @h {
bb.0: liveins $r0, $r1
  %0:gpr = COPY $r0
  %1:gpr = COPY $r1
  %2:gpr = MOVI 3
  %3:gpr = ADD killed %0, killed %1
  BRZ %3, bb.2
bb.1:
  %4:gpr = SUB killed %3, killed %2
  RET killed %4
bb.2:
  RET killed %2
}`

func testConfig() *Config {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return NewConfig().WithLogger(logrus.NewEntry(l))
}

func TestAllocate(t *testing.T) {
	fn := mir.MustParseFunction(twoRegisters, toy2)
	stats, err := Allocate(context.Background(), testConfig(), fn)
	require.NoError(t, err)
	require.Equal(t, Stats{Blocks: 1, Instrs: 4}, stats)
	require.Equal(t, `func @f {
bb.0:
  $r0 = MOVI 1
  $r1 = MOVI 2
  $r0 = ADD killed $r0, killed $r1
  RET killed $r0
}
`, fn.String())
}

func TestAllocate_verify(t *testing.T) {
	for _, skip := range []bool{false, true} {
		fn := mir.MustParseFunction(withLiveIns, toy4)
		want, err := interp.Run(fn.Clone(), VerifyArgs(fn)...)
		require.NoError(t, err)

		cfg := testConfig().WithVerify(true).WithSkipCleanSpills(skip)
		stats, err := Allocate(context.Background(), cfg, fn)
		require.NoError(t, err)
		require.False(t, fn.HasVRegs())
		require.Equal(t, 3, stats.Blocks)

		got, err := interp.Run(fn, VerifyArgs(fn)...)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestAllocate_errors(t *testing.T) {
	t.Run("exhausted", func(t *testing.T) {
		fn := mir.MustParseFunction(exhausting, toy1)
		_, err := Allocate(context.Background(), testConfig(), fn)
		require.True(t, errors.Is(err, regalloc.ErrRegClassExhausted), err)
		require.Contains(t, err.Error(), "@g: bb.0")
	})
	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		fn := mir.MustParseFunction(twoRegisters, toy2)
		_, err := Allocate(ctx, testConfig(), fn)
		require.ErrorIs(t, err, context.Canceled)
		require.True(t, fn.HasVRegs())
	})
	t.Run("no target", func(t *testing.T) {
		_, err := Allocate(context.Background(), testConfig(), &mir.Function{Name: "f"})
		require.EqualError(t, err, "@f has no target")
	})
}

func TestVerify(t *testing.T) {
	log := testConfig().loggerOrDiscard()
	ref := mir.MustParseFunction(`
func @f {
bb.0:
  $r0 = MOVI 1
  RET $r0
}`, toy2)
	other := mir.MustParseFunction(`
func @f {
bb.0:
  $r0 = MOVI 2
  RET $r0
}`, toy2)
	undefined := mir.MustParseFunction(`
func @f {
bb.0:
  RET $r1
}`, toy2)

	require.NoError(t, verify(log, ref, ref.Clone()))

	err := verify(log, ref, other)
	require.True(t, errors.Is(err, ErrVerify), err)
	require.Contains(t, err.Error(), "-want +got")

	err = verify(log, ref, undefined)
	require.True(t, errors.Is(err, ErrVerify), err)

	// A reference that cannot run is not verified.
	require.NoError(t, verify(log, undefined, ref))
}

func TestVerifyArgs(t *testing.T) {
	fn := mir.MustParseFunction(withLiveIns, toy4)
	args := VerifyArgs(fn)
	require.Equal(t, 2, len(args))
	require.NotEqual(t, args[0], args[1])
	require.Nil(t, VerifyArgs(&mir.Function{}))
}

func TestAllocateAll(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := testConfig().WithParallelism(2).WithMetrics(reg)

	var fns []*mir.Function
	for i := 0; i < 5; i++ {
		fns = append(fns, mir.MustParseFunction(twoRegisters, toy2))
	}
	fns = append(fns, mir.MustParseFunction(withLiveIns, toy4))

	stats, err := AllocateAll(context.Background(), cfg, fns)
	require.NoError(t, err)
	require.Equal(t, len(fns), len(stats))
	for i := 0; i < 5; i++ {
		require.Equal(t, Stats{Blocks: 1, Instrs: 4}, stats[i])
	}
	require.Equal(t, 3, stats[5].Blocks)
	for _, fn := range fns {
		require.False(t, fn.HasVRegs())
	}

	m, err := metrics.New(reg)
	require.NoError(t, err)
	require.Equal(t, float64(5), testutil.ToFloat64(m.Functions.WithLabelValues("toy2")))
	require.Equal(t, float64(5), testutil.ToFloat64(m.Blocks.WithLabelValues("toy2")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.Functions.WithLabelValues("toy4")))
}

func TestAllocateAll_error(t *testing.T) {
	fns := []*mir.Function{
		mir.MustParseFunction(twoRegisters, toy2),
		mir.MustParseFunction(exhausting, toy1),
	}
	_, err := AllocateAll(context.Background(), testConfig().WithParallelism(1), fns)
	require.True(t, errors.Is(err, regalloc.ErrRegClassExhausted), err)
}
