package fastalloc

import (
	"io"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/xyproto/env/v2"
)

// Environment variables read by NewConfig.
const (
	EnvSkipCleanSpills = "FASTALLOC_SKIP_CLEAN_SPILLS"
	EnvValidate        = "FASTALLOC_VALIDATE"
	EnvParallelism     = "FASTALLOC_PARALLELISM"
	EnvLogLevel        = "FASTALLOC_LOG_LEVEL"
)

// Config controls allocation behavior, with the default implementation as NewConfig.
//
// Config is immutable: each WithXxx method returns a copy, so a Config can be shared between goroutines.
type Config struct {
	logger          *logrus.Entry
	skipCleanSpills bool
	validate        bool
	verify          bool
	parallelism     int
	registerer      prometheus.Registerer
}

// defaultConfig helps avoid copy/pasting the wrong defaults.
var defaultConfig = &Config{
	validate:    true,
	parallelism: runtime.GOMAXPROCS(0),
}

// clone ensures all fields are copied even if nil.
func (c *Config) clone() *Config {
	return &Config{
		logger:          c.logger,
		skipCleanSpills: c.skipCleanSpills,
		validate:        c.validate,
		verify:          c.verify,
		parallelism:     c.parallelism,
		registerer:      c.registerer,
	}
}

// NewConfig returns the default Config, overridden by the environment:
//
//   - FASTALLOC_SKIP_CLEAN_SPILLS: "true" enables WithSkipCleanSpills.
//   - FASTALLOC_VALIDATE: "false" disables WithValidation, which defaults to enabled.
//   - FASTALLOC_PARALLELISM: the limit of WithParallelism. Defaults to GOMAXPROCS.
//   - FASTALLOC_LOG_LEVEL: a logrus level for the default logger, which writes to stderr. Defaults to "warning".
func NewConfig() *Config {
	// env caches the environment on first use.
	env.Load()
	ret := defaultConfig.clone()
	ret.skipCleanSpills = env.Bool(EnvSkipCleanSpills)
	if env.Str(EnvValidate) != "" {
		ret.validate = env.Bool(EnvValidate)
	}
	if n := env.Int(EnvParallelism, ret.parallelism); n > 0 {
		ret.parallelism = n
	}
	l := logrus.New()
	if level, err := logrus.ParseLevel(env.Str(EnvLogLevel, "warning")); err == nil {
		l.SetLevel(level)
	} else {
		l.SetLevel(logrus.WarnLevel)
	}
	ret.logger = logrus.NewEntry(l)
	return ret
}

// WithLogger sets the logger receiving the allocation trace. Debug level traces every block and every spill.
// Nil discards all output.
func (c *Config) WithLogger(logger *logrus.Entry) *Config {
	ret := c.clone()
	ret.logger = logger
	return ret
}

// WithSkipCleanSpills skips storing a value to its spill slot when the slot already holds it. Defaults to false,
// where every eviction, call clobber and block exit stores unconditionally.
func (c *Config) WithSkipCleanSpills(enabled bool) *Config {
	ret := c.clone()
	ret.skipCleanSpills = enabled
	return ret
}

// WithValidation checks the allocator state after every instruction, and that no virtual register remains after
// allocation. Defaults to true.
func (c *Config) WithValidation(enabled bool) *Config {
	ret := c.clone()
	ret.validate = enabled
	return ret
}

// WithVerify interprets each function before and after allocation and fails with ErrVerify when the results
// differ. Defaults to false.
//
// Note: Verification copies the function and runs it twice, which is much slower than allocation itself.
func (c *Config) WithVerify(enabled bool) *Config {
	ret := c.clone()
	ret.verify = enabled
	return ret
}

// WithParallelism limits how many functions AllocateAll allocates at the same time. Values below one mean no
// limit.
func (c *Config) WithParallelism(n int) *Config {
	ret := c.clone()
	ret.parallelism = n
	return ret
}

// WithMetrics registers allocation counters to reg. Nil disables metrics, which is the default.
func (c *Config) WithMetrics(reg prometheus.Registerer) *Config {
	ret := c.clone()
	ret.registerer = reg
	return ret
}

func (c *Config) loggerOrDiscard() *logrus.Entry {
	if c.logger != nil {
		return c.logger
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}
