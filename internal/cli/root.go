// Package cli wires the cargo-gpu commands together.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"cargogpu/internal/command"
	"cargogpu/internal/logx"
	"cargogpu/internal/metadata"
	"cargogpu/internal/paths"
)

var (
	verbose    int
	cacheDir   string
	logToFile  bool
	outputJSON bool

	// runner executes cargo, rustup and rustc.
	runner command.Runner = command.CmdRunner{}
)

// Execute runs the root cobra command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd()
	cmd.SetArgs(cargoArgs(os.Args[1:]))
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// cargoArgs drops the subcommand name cargo passes when invoked as
// `cargo gpu`.
func cargoArgs(args []string) []string {
	if len(args) > 0 && args[0] == "gpu" {
		return args[1:]
	}
	return args
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "cargo-gpu",
		Short:         "Install rust-gpu and compile shader crates to SPIR-V",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "Increase log verbosity (repeatable)")
	cmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", "", "Override the rust-gpu cache directory")
	cmd.PersistentFlags().BoolVar(&logToFile, "log-file", false, "Write logs to a timestamped file in the cache instead of stderr")

	cmd.AddCommand(newInstallCmd())
	cmd.AddCommand(newBuildCmd())
	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newCacheCmd())
	cmd.AddCommand(newDumpUsageCmd())

	return cmd
}

// session holds what every command needs once flags are parsed.
type session struct {
	ctx    context.Context
	cache  paths.Cache
	logger logr.Logger
	closer io.Closer
}

func newSession(cmd *cobra.Command) (*session, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cache, err := paths.NewCache(cacheDir)
	if err != nil {
		return nil, err
	}

	opts := logx.Options{Verbosity: verbose, Stderr: cmd.ErrOrStderr()}
	if logToFile {
		opts.LogsDir = cache.LogsDir()
	}
	logger, closer, err := logx.New(opts)
	if err != nil {
		return nil, err
	}
	logger.V(2).Info("command line", "command", cmd.CommandPath(), "args", os.Args[1:])

	return &session{ctx: ctx, cache: cache, logger: logger, closer: closer}, nil
}

func (s *session) Close() error {
	return s.closer.Close()
}

func (s *session) metadata() metadata.Querier {
	return metadata.Cargo{Runner: runner, Logger: s.logger}
}

// fail logs err with its full chain before cobra prints the short form.
func (s *session) fail(err error) error {
	if err != nil {
		s.logger.Error(err, "command failed")
	}
	return err
}
