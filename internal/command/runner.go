package command

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"slices"
	"strconv"
	"strings"
)

// RunOptions configures a single subprocess invocation. Stdout and Stderr
// receive a live copy of the output in addition to the captured buffers.
type RunOptions struct {
	Dir    string
	Env    []string
	// Unset names inherited variables the child must not see.
	Unset  []string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

type RunResult struct {
	Stdout []byte
	Stderr []byte
}

type Runner interface {
	Run(ctx context.Context, command string, args []string, opts RunOptions) (RunResult, error)
}

type CmdRunner struct{}

func (CmdRunner) Run(ctx context.Context, command string, args []string, opts RunOptions) (RunResult, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}
	if len(opts.Env) > 0 || len(opts.Unset) > 0 {
		cmd.Env = append(filterEnv(os.Environ(), opts.Unset), opts.Env...)
	}
	if opts.Stdin != nil {
		cmd.Stdin = opts.Stdin
	}

	var stdoutBuf, stderrBuf bytes.Buffer

	stdoutWriter := io.Writer(&stdoutBuf)
	if opts.Stdout != nil {
		stdoutWriter = io.MultiWriter(&stdoutBuf, opts.Stdout)
	}
	stderrWriter := io.Writer(&stderrBuf)
	if opts.Stderr != nil {
		stderrWriter = io.MultiWriter(&stderrBuf, opts.Stderr)
	}

	cmd.Stdout = stdoutWriter
	cmd.Stderr = stderrWriter

	err := cmd.Run()
	return RunResult{Stdout: stdoutBuf.Bytes(), Stderr: stderrBuf.Bytes()}, err
}

var _ Runner = CmdRunner{}

// CargoUnset are variables set by an outer cargo or rustup invocation that
// would leak into a nested cargo build for a different toolchain.
var CargoUnset = []string{
	"RUSTC",
	"RUSTC_WRAPPER",
	"RUSTC_WORKSPACE_WRAPPER",
	"RUSTFLAGS",
	"CARGO_ENCODED_RUSTFLAGS",
	"CARGO_BUILD_RUSTFLAGS",
	"RUSTDOC",
}

func filterEnv(env, unset []string) []string {
	if len(unset) == 0 {
		return env
	}
	out := make([]string, 0, len(env))
	for _, kv := range env {
		name, _, _ := strings.Cut(kv, "=")
		if !slices.Contains(unset, name) {
			out = append(out, kv)
		}
	}
	return out
}

// ExitStatus is a non-zero process exit. Runner implementations that do not
// spawn real processes return it to report a failed command.
type ExitStatus int

func (s ExitStatus) Error() string {
	return "exit status " + strconv.Itoa(int(s))
}

func (s ExitStatus) ExitCode() int { return int(s) }
