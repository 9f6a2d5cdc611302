// Package fastalloc allocates physical registers for mir functions.
//
// Allocation is block-local: a value living across blocks goes through its spill slot. See
// github.com/tetratelabs/fastalloc/mir for the instruction format, and the target packages for the register files.
package fastalloc

import (
	"context"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/tetratelabs/fastalloc/internal/interp"
	"github.com/tetratelabs/fastalloc/internal/metrics"
	"github.com/tetratelabs/fastalloc/internal/regalloc"
	"github.com/tetratelabs/fastalloc/mir"
)

// ErrVerify is returned by a Config.WithVerify allocation when the allocated function computes other results than
// the original.
var ErrVerify = errors.New("allocated function does not match the original")

// Stats are the counters of one allocated function.
type Stats = regalloc.Stats

// Allocate rewrites every virtual register of fn into a physical register of fn.Target, inserting spills and
// reloads as needed. A nil cfg is NewConfig.
//
// On error fn is left in an unspecified state.
func Allocate(ctx context.Context, cfg *Config, fn *mir.Function) (Stats, error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	m, err := cfg.newMetrics()
	if err != nil {
		return Stats{}, err
	}
	return allocate(ctx, cfg, m, fn)
}

// AllocateAll allocates fns concurrently, up to Config.WithParallelism functions at a time. Each function is
// allocated sequentially by its own allocator. The returned Stats are in the order of fns.
//
// The first error cancels the functions not yet started, and is returned.
func AllocateAll(ctx context.Context, cfg *Config, fns []*mir.Function) ([]Stats, error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	m, err := cfg.newMetrics()
	if err != nil {
		return nil, err
	}

	ret := make([]Stats, len(fns))
	g, ctx := errgroup.WithContext(ctx)
	if cfg.parallelism > 0 {
		g.SetLimit(cfg.parallelism)
	}
	for i, fn := range fns {
		i, fn := i, fn
		g.Go(func() (err error) {
			ret[i], err = allocate(ctx, cfg, m, fn)
			return
		})
	}
	if err := g.Wait(); err != nil {
		return ret, err
	}
	return ret, nil
}

func allocate(ctx context.Context, cfg *Config, m *metrics.Metrics, fn *mir.Function) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	if fn.Target == nil {
		return Stats{}, errors.Errorf("@%s has no target", fn.Name)
	}
	log := cfg.loggerOrDiscard()

	var ref *mir.Function
	if cfg.verify {
		ref = fn.Clone()
	}

	a := regalloc.NewAllocator(fn.Target, regalloc.Options{
		Logger:          log,
		SkipCleanSpills: cfg.skipCleanSpills,
		Validate:        cfg.validate,
	})
	stats, err := a.DoAllocation(fn)
	if err != nil {
		return stats, err
	}
	m.Observe(fn.Target.Name(), stats.Stores, stats.Loads, stats.Blocks)

	if ref != nil {
		if err := verify(log, ref, fn); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// verify runs ref and allocated with the same arguments and compares their results. A ref that cannot run to
// completion is not an allocation failure, so it only skips the comparison.
func verify(log *logrus.Entry, ref, allocated *mir.Function) error {
	args := VerifyArgs(ref)
	want, err := interp.Run(ref, args...)
	if err != nil {
		log.WithField("func", ref.Name).WithError(err).Debug("skipping verification")
		return nil
	}
	got, err := interp.Run(allocated, args...)
	if err != nil {
		return errors.Wrapf(ErrVerify, "@%s: %v", ref.Name, err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		return errors.Wrapf(ErrVerify, "@%s: results (-want +got):\n%s", ref.Name, diff)
	}
	return nil
}

// VerifyArgs returns the arguments used to verify fn: one distinct value per live-in of its entry block.
func VerifyArgs(fn *mir.Function) []uint64 {
	if len(fn.Blocks) == 0 {
		return nil
	}
	ret := make([]uint64, len(fn.Blocks[0].LiveIns))
	for i := range ret {
		ret[i] = 0x1234_5678_9abc_0000 + uint64(i)*0x1_0001
	}
	return ret
}

func (c *Config) newMetrics() (*metrics.Metrics, error) {
	if c.registerer == nil {
		return nil, nil
	}
	return metrics.New(c.registerer)
}
