package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const twoRegisters = `
func @f {
bb.0:
  %0:gpr = MOVI 1
  %1:gpr = MOVI 2
  %2:gpr = ADD killed %0, killed %1
  RET killed %2
}
`

const sum = `
; Adds its two arguments.
func @sum {
bb.0: liveins $r0, $r1
  %0:gpr = COPY $r0
  %1:gpr = COPY $r1
  %2:gpr = ADD killed %0, killed %1
  RET killed %2
}
`

const amd64Source = `
func @one {
bb.0:
  %0:gr64 = MOVI 1
  RET killed %0
}
`

func TestAlloc(t *testing.T) {
	path := writeFile(t, twoRegisters)
	exitCode, stdOut, stdErr := runMain(t, "", "alloc", "--target", "toy", "--regs", "2", "--verify", path)
	require.Equal(t, 0, exitCode, stdErr)
	require.Equal(t, `func @f {
bb.0:
  $r0 = MOVI 1
  $r1 = MOVI 2
  $r0 = ADD killed $r0, killed $r1
  RET killed $r0
}
; stores 0, loads 0
`, stdOut)
	require.Equal(t, "", stdErr)
}

func TestAlloc_stdin(t *testing.T) {
	exitCode, stdOut, stdErr := runMain(t, twoRegisters, "alloc", "-t", "toy", "--regs", "2", "-")
	require.Equal(t, 0, exitCode, stdErr)
	require.True(t, strings.HasPrefix(stdOut, "func @f {\n"), stdOut)
}

func TestRun(t *testing.T) {
	path := writeFile(t, sum)
	exitCode, stdOut, stdErr := runMain(t, "", "run", "-t", "toy", "--func", "sum", path, "5", "0x7")
	require.Equal(t, 0, exitCode, stdErr)
	require.Equal(t, "before: [12]\nafter:  [12]\n", stdOut)
}

func TestAsm(t *testing.T) {
	path := writeFile(t, amd64Source)
	exitCode, stdOut, stdErr := runMain(t, "", "asm", path)
	require.Equal(t, 0, exitCode, stdErr)
	lines := strings.Split(strings.TrimSpace(stdOut), "\n")
	require.Equal(t, 2, len(lines), stdOut)
	require.Equal(t, "@one: frame 0", lines[0])
	require.True(t, strings.HasSuffix(lines[1], "c3"), lines[1])
}

func TestErrors(t *testing.T) {
	toyPath := writeFile(t, twoRegisters)
	for _, tc := range []struct {
		name   string
		args   []string
		stdErr string
	}{
		{
			name:   "unknown target",
			args:   []string{"alloc", "--target", "arm64", toyPath},
			stdErr: "unknown target \"arm64\"\n",
		},
		{
			name:   "asm on toy",
			args:   []string{"asm", "--target", "toy", toyPath},
			stdErr: "asm requires the amd64 target, got \"toy\"\n",
		},
		{
			name:   "directory",
			args:   []string{"alloc", filepath.Dir(toyPath)},
			stdErr: "'" + filepath.Dir(toyPath) + "' is a directory, please provide a file\n",
		},
		{
			name:   "invalid argument",
			args:   []string{"run", "-t", "toy", toyPath, "x"},
			stdErr: "invalid argument \"x\": strconv.ParseUint: parsing \"x\": invalid syntax\n",
		},
		{
			name:   "unknown function",
			args:   []string{"run", "-t", "toy", "--func", "g", toyPath},
			stdErr: "no function @g in " + toyPath + "\n",
		},
		{
			name:   "exhausted",
			args:   []string{"alloc", "-t", "toy", "--regs", "1", toyPath},
			stdErr: "@f: bb.0: ",
		},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			exitCode, stdOut, stdErr := runMain(t, "", tc.args...)
			require.Equal(t, 1, exitCode)
			require.Equal(t, "", stdOut)
			require.True(t, strings.HasPrefix(stdErr, tc.stdErr), stdErr)
		})
	}
}

func writeFile(t *testing.T, src string) string {
	path := filepath.Join(t.TempDir(), "in.mir")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))
	return path
}

func runMain(t *testing.T, stdIn string, args ...string) (int, string, string) {
	t.Helper()
	stdOut, stdErr := &bytes.Buffer{}, &bytes.Buffer{}
	exitCode := doMain(args, strings.NewReader(stdIn), stdOut, stdErr)
	return exitCode, stdOut.String(), stdErr.String()
}
