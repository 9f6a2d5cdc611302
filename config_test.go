package fastalloc

import (
	"runtime"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	reg := prometheus.NewRegistry()
	logger := logrus.NewEntry(logrus.New())

	tests := []struct {
		name     string
		with     func(*Config) *Config
		expected *Config
	}{
		{
			name:     "WithLogger",
			with:     func(c *Config) *Config { return c.WithLogger(logger) },
			expected: &Config{logger: logger},
		},
		{
			name:     "WithSkipCleanSpills",
			with:     func(c *Config) *Config { return c.WithSkipCleanSpills(true) },
			expected: &Config{skipCleanSpills: true},
		},
		{
			name:     "WithValidation",
			with:     func(c *Config) *Config { return c.WithValidation(true) },
			expected: &Config{validate: true},
		},
		{
			name:     "WithVerify",
			with:     func(c *Config) *Config { return c.WithVerify(true) },
			expected: &Config{verify: true},
		},
		{
			name:     "WithParallelism",
			with:     func(c *Config) *Config { return c.WithParallelism(3) },
			expected: &Config{parallelism: 3},
		},
		{
			name:     "WithMetrics",
			with:     func(c *Config) *Config { return c.WithMetrics(reg) },
			expected: &Config{registerer: reg},
		},
	}
	for _, tt := range tests {
		tc := tt

		t.Run(tc.name, func(t *testing.T) {
			input := &Config{}
			rc := tc.with(input)
			require.Equal(t, tc.expected, rc)
			// The source wasn't modified
			require.Equal(t, &Config{}, input)
		})
	}
}

func TestNewConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		for _, k := range []string{EnvSkipCleanSpills, EnvValidate, EnvParallelism, EnvLogLevel} {
			t.Setenv(k, "")
		}
		c := NewConfig()
		require.False(t, c.skipCleanSpills)
		require.True(t, c.validate)
		require.False(t, c.verify)
		require.Equal(t, runtime.GOMAXPROCS(0), c.parallelism)
		require.Nil(t, c.registerer)
		require.Equal(t, logrus.WarnLevel, c.logger.Logger.GetLevel())
	})
	t.Run("environment", func(t *testing.T) {
		t.Setenv(EnvSkipCleanSpills, "true")
		t.Setenv(EnvValidate, "false")
		t.Setenv(EnvParallelism, "7")
		t.Setenv(EnvLogLevel, "debug")
		c := NewConfig()
		require.True(t, c.skipCleanSpills)
		require.False(t, c.validate)
		require.Equal(t, 7, c.parallelism)
		require.Equal(t, logrus.DebugLevel, c.logger.Logger.GetLevel())
	})
	t.Run("environment changed between calls", func(t *testing.T) {
		t.Setenv(EnvParallelism, "2")
		t.Setenv(EnvSkipCleanSpills, "")
		require.Equal(t, 2, NewConfig().parallelism)
		t.Setenv(EnvParallelism, "5")
		t.Setenv(EnvSkipCleanSpills, "true")
		c := NewConfig()
		require.Equal(t, 5, c.parallelism)
		require.True(t, c.skipCleanSpills)
	})
	t.Run("invalid log level", func(t *testing.T) {
		t.Setenv(EnvLogLevel, "loud")
		require.Equal(t, logrus.WarnLevel, NewConfig().logger.Logger.GetLevel())
	})
}

func TestConfig_loggerOrDiscard(t *testing.T) {
	require.NotNil(t, (&Config{}).loggerOrDiscard())
	logger := logrus.NewEntry(logrus.New())
	require.Same(t, logger, (&Config{logger: logger}).loggerOrDiscard())
}
