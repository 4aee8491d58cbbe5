// Package commandtest provides a scripted command.Runner for tests.
package commandtest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"cargogpu/internal/command"
)

// Call records one invocation seen by Fake.
type Call struct {
	Name  string
	Args  []string
	Dir   string
	Env   []string
	// Unset mirrors RunOptions.Unset.
	Unset []string
}

// Line returns the invocation as a single command line.
func (c Call) Line() string {
	return command.Line(c.Name, c.Args)
}

// Handler produces the result of a matched invocation.
type Handler func(call Call, opts command.RunOptions) (command.RunResult, error)

type route struct {
	prefix  string
	handler Handler
}

// Fake matches invocations against registered command-line prefixes. The
// most recently registered matching route wins, so tests can override a
// default reply mid-scenario.
type Fake struct {
	mu     sync.Mutex
	routes []route
	calls  []Call
}

var _ command.Runner = (*Fake)(nil)

// On registers a handler for every invocation whose command line starts with
// prefix.
func (f *Fake) On(prefix string, h Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes = append(f.routes, route{prefix: prefix, handler: h})
}

func (f *Fake) Run(_ context.Context, name string, args []string, opts command.RunOptions) (command.RunResult, error) {
	call := Call{Name: name, Args: append([]string(nil), args...), Dir: opts.Dir, Env: append([]string(nil), opts.Env...), Unset: opts.Unset}
	line := call.Line()

	f.mu.Lock()
	f.calls = append(f.calls, call)
	var handler Handler
	for i := len(f.routes) - 1; i >= 0; i-- {
		if strings.HasPrefix(line, f.routes[i].prefix) {
			handler = f.routes[i].handler
			break
		}
	}
	f.mu.Unlock()

	if handler == nil {
		return command.RunResult{}, fmt.Errorf("commandtest: unexpected command %q", line)
	}
	return handler(call, opts)
}

// Calls returns every invocation whose command line starts with prefix.
func (f *Fake) Calls(prefix string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if strings.HasPrefix(c.Line(), prefix) {
			out = append(out, c)
		}
	}
	return out
}

// Reply returns a handler that succeeds with the given stdout.
func Reply(stdout string) Handler {
	return func(_ Call, opts command.RunOptions) (command.RunResult, error) {
		if opts.Stdout != nil {
			_, _ = opts.Stdout.Write([]byte(stdout))
		}
		return command.RunResult{Stdout: []byte(stdout)}, nil
	}
}

// Fail returns a handler that exits with code and writes stderr.
func Fail(code int, stderr string) Handler {
	return func(_ Call, opts command.RunOptions) (command.RunResult, error) {
		if opts.Stderr != nil {
			_, _ = opts.Stderr.Write([]byte(stderr))
		}
		return command.RunResult{Stderr: []byte(stderr)}, command.ExitStatus(code)
	}
}
