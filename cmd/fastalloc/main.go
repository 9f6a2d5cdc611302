package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tetratelabs/fastalloc"
	"github.com/tetratelabs/fastalloc/internal/interp"
	"github.com/tetratelabs/fastalloc/mir"
	"github.com/tetratelabs/fastalloc/target"
	"github.com/tetratelabs/fastalloc/target/amd64"
	"github.com/tetratelabs/fastalloc/target/toy"
)

func main() {
	os.Exit(doMain(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

type options struct {
	target          string
	regs            int
	skipCleanSpills bool
	validate        bool
	verify          bool
	logLevel        string
	parallelism     int
	function        string
}

// doMain is separated out for the purpose of unit testing.
func doMain(args []string, stdIn io.Reader, stdOut, stdErr io.Writer) int {
	rootCmd := newRootCommand()
	rootCmd.SetArgs(args)
	rootCmd.SetIn(stdIn)
	rootCmd.SetOut(stdOut)
	rootCmd.SetErr(stdErr)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(stdErr, err)
		return 1
	}
	return 0
}

func newRootCommand() *cobra.Command {
	o := &options{}
	rootCmd := &cobra.Command{
		Use:           "fastalloc",
		Short:         "Block-local register allocation of MIR functions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&o.target, "target", "t", "amd64", "target, one of [amd64, toy]")
	flags.IntVar(&o.regs, "regs", 4, "number of registers of the toy target")
	flags.BoolVar(&o.skipCleanSpills, "skip-clean-spills", false,
		"do not store values whose spill slot is up to date (default from "+fastalloc.EnvSkipCleanSpills+")")
	flags.BoolVar(&o.validate, "validate", true,
		"check the allocator state after every instruction (default from "+fastalloc.EnvValidate+")")
	flags.BoolVar(&o.verify, "verify", false, "interpret each function before and after allocation and compare")
	flags.StringVar(&o.logLevel, "log-level", "", "log level (default from "+fastalloc.EnvLogLevel+")")
	flags.IntVar(&o.parallelism, "parallelism", 0,
		"functions allocated at the same time (default from "+fastalloc.EnvParallelism+")")

	rootCmd.AddCommand(newAllocCommand(o))
	rootCmd.AddCommand(newAsmCommand(o))
	rootCmd.AddCommand(newRunCommand(o))
	return rootCmd
}

func newAllocCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "alloc FILE",
		Short: "Allocate the functions of FILE and print them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fns, stats, err := o.allocateFile(cmd, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, fn := range fns {
				fmt.Fprint(out, fn)
				fmt.Fprintf(out, "; stores %d, loads %d\n", stats[i].Stores, stats[i].Loads)
			}
			return nil
		},
	}
}

func newAsmCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "asm FILE",
		Short: "Allocate the functions of FILE and print their x86-64 machine code in hex",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.target != "amd64" {
				return errors.Errorf("asm requires the amd64 target, got %q", o.target)
			}
			fns, _, err := o.allocateFile(cmd, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, fn := range fns {
				code, err := amd64.Assemble(fn)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "@%s: frame %d\n", fn.Name, code.FrameSize)
				fmt.Fprintln(out, hex.EncodeToString(code.Bytes))
				for _, c := range code.Calls {
					fmt.Fprintf(out, "  call @%s at %d\n", c.Symbol, c.Offset)
				}
			}
			return nil
		},
	}
}

func newRunCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run FILE [ARG...]",
		Short: "Interpret a function of FILE before and after allocation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var fnArgs []uint64
			for _, s := range args[1:] {
				v, err := strconv.ParseUint(s, 0, 64)
				if err != nil {
					return errors.Wrapf(err, "invalid argument %q", s)
				}
				fnArgs = append(fnArgs, v)
			}

			fns, err := o.parseFile(cmd, args[0])
			if err != nil {
				return err
			}
			fn := fns[0]
			if o.function != "" {
				fn = nil
				for _, f := range fns {
					if f.Name == o.function {
						fn = f
					}
				}
				if fn == nil {
					return errors.Errorf("no function @%s in %s", o.function, args[0])
				}
			}

			before, err := interp.Run(fn.Clone(), fnArgs...)
			if err != nil {
				return errors.Wrap(err, "before allocation")
			}
			if _, err = fastalloc.Allocate(cmd.Context(), o.config(cmd), fn); err != nil {
				return err
			}
			after, err := interp.Run(fn, fnArgs...)
			if err != nil {
				return errors.Wrap(err, "after allocation")
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "before: %v\n", before)
			fmt.Fprintf(out, "after:  %v\n", after)
			if !slices.Equal(before, after) {
				return errors.Wrapf(fastalloc.ErrVerify, "@%s", fn.Name)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&o.function, "func", "f", "", "name of the function to run (default the first one)")
	return cmd
}

func (o *options) resolveTarget() (*target.Target, error) {
	switch o.target {
	case "amd64":
		return amd64.Target, nil
	case "toy":
		return toy.New(o.regs)
	default:
		return nil, errors.Errorf("unknown target %q", o.target)
	}
}

// config returns the environment defaults of fastalloc.NewConfig overridden by the flags set on the command line.
func (o *options) config(cmd *cobra.Command) *fastalloc.Config {
	cfg := fastalloc.NewConfig()
	flags := cmd.Flags()
	if flags.Changed("skip-clean-spills") {
		cfg = cfg.WithSkipCleanSpills(o.skipCleanSpills)
	}
	if flags.Changed("validate") {
		cfg = cfg.WithValidation(o.validate)
	}
	if flags.Changed("parallelism") {
		cfg = cfg.WithParallelism(o.parallelism)
	}
	if o.logLevel != "" {
		l := logrus.New()
		l.SetOutput(cmd.ErrOrStderr())
		if level, err := logrus.ParseLevel(o.logLevel); err == nil {
			l.SetLevel(level)
		}
		cfg = cfg.WithLogger(logrus.NewEntry(l))
	}
	return cfg.WithVerify(o.verify)
}

func (o *options) parseFile(cmd *cobra.Command, path string) ([]*mir.Function, error) {
	t, err := o.resolveTarget()
	if err != nil {
		return nil, err
	}
	src, err := readFile(cmd, path)
	if err != nil {
		return nil, err
	}
	fns, err := mir.Parse(string(src), t)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	if len(fns) == 0 {
		return nil, errors.Errorf("%s: no functions", path)
	}
	return fns, nil
}

func (o *options) allocateFile(cmd *cobra.Command, path string) ([]*mir.Function, []fastalloc.Stats, error) {
	fns, err := o.parseFile(cmd, path)
	if err != nil {
		return nil, nil, err
	}
	stats, err := fastalloc.AllocateAll(cmd.Context(), o.config(cmd), fns)
	if err != nil {
		return nil, nil, err
	}
	return fns, stats, nil
}

// readFile reads path, or the standard input when path is "-".
func readFile(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	stat, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if stat.IsDir() {
		return nil, errors.Errorf("'%s' is a directory, please provide a file", path)
	}
	return os.ReadFile(path)
}
