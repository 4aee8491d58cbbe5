package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ExecKind distinguishes a command that could not run from one that ran and
// reported failure.
type ExecKind int

const (
	// ExecIO means the process could not be started or waited on.
	ExecIO ExecKind = iota
	// ExecFailed means the process exited with a non-zero status.
	ExecFailed
)

// ExecError describes a failed subprocess invocation. It carries the full
// argument vector and whatever output was captured.
type ExecError struct {
	Kind    ExecKind
	Command []string
	Dir     string
	Output  RunResult
	Err     error
}

func (e *ExecError) Error() string {
	switch e.Kind {
	case ExecFailed:
		msg := fmt.Sprintf("calling `%s` was not successful", e.CommandLine())
		if stderr := strings.TrimSpace(string(e.Output.Stderr)); stderr != "" {
			msg += ": " + lastLines(stderr, 5)
		}
		return msg
	default:
		return fmt.Sprintf("IO error occurred while calling `%s`: %v", e.CommandLine(), e.Err)
	}
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// CommandLine renders the argument vector the way a shell user would type it.
func (e *ExecError) CommandLine() string {
	return Line(e.Command[0], e.Command[1:])
}

// Line joins a command and its arguments, quoting arguments that contain
// whitespace or quotes.
func Line(name string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, quoteArg(name))
	for _, arg := range args {
		parts = append(parts, quoteArg(arg))
	}
	return strings.Join(parts, " ")
}

func quoteArg(arg string) string {
	if arg == "" || strings.ContainsAny(arg, " \t\n\"'") {
		return strconv.Quote(arg)
	}
	return arg
}

// Exec runs a command through r and maps any failure to an *ExecError.
func Exec(ctx context.Context, r Runner, name string, args []string, opts RunOptions) (RunResult, error) {
	res, err := r.Run(ctx, name, args, opts)
	if err == nil {
		return res, nil
	}

	argv := append([]string{name}, args...)
	var exit interface{ ExitCode() int }
	if errors.As(err, &exit) && exit.ExitCode() != 0 {
		return res, &ExecError{Kind: ExecFailed, Command: argv, Dir: opts.Dir, Output: res, Err: err}
	}
	return res, &ExecError{Kind: ExecIO, Command: argv, Dir: opts.Dir, Output: res, Err: err}
}

func lastLines(text string, n int) string {
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
