package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"

	"cargogpu/internal/command"
	"cargogpu/internal/metadata"
	"cargogpu/internal/paths"
	"cargogpu/internal/source"
	"cargogpu/internal/targetspecs"
	"cargogpu/internal/toolchain"
	"cargogpu/internal/tui"
)

// ErrDylibNotFound means cargo succeeded but left no backend library behind.
var ErrDylibNotFound = errors.New("`rustc_codegen_spirv` build did not produce the expected dylib")

// Installer resolves, builds and caches the backend for a shader crate.
type Installer struct {
	// Source and Version override the rust-gpu source found in the shader
	// crate's dependency graph.
	Source  string
	Version string
	// RebuildCodegen ignores a cached backend.
	RebuildCodegen bool
	// ClearTarget removes the helper crate's target dir after a build.
	ClearTarget bool
	// DisableLock skips the per-source install lock.
	DisableLock bool

	Cache    paths.Cache
	Runner   command.Runner
	Metadata metadata.Querier
	Logger   logr.Logger

	// Out receives user-facing messages. Stdout and Stderr receive the
	// output of cargo and rustup.
	Out    io.Writer
	Stdout io.Writer
	Stderr io.Writer
}

func (i Installer) querier() metadata.Querier {
	if i.Metadata != nil {
		return i.Metadata
	}
	return metadata.Cargo{Runner: i.Runner, Logger: i.Logger}
}

// Install makes sure the backend for shaderCrate is built and returns where
// it lives. halt is consulted before rustup installs anything.
func (i Installer) Install(ctx context.Context, shaderCrate string, halt toolchain.Halt) (Backend, error) {
	log := i.Logger
	log.Info("cache directory", "path", i.Cache.Root)
	if err := i.Cache.Ensure(); err != nil {
		return Backend{}, err
	}

	querier := i.querier()
	src, err := source.Resolve(ctx, querier, shaderCrate, i.Source, i.Version)
	if err != nil {
		return Backend{}, err
	}
	installDir := src.InstallDir(i.Cache)
	log.V(1).Info("resolved rust-gpu source", "source", src.String(), "kind", src.Kind().String(), "dir", installDir)

	if !src.IsPath() && !i.DisableLock {
		unlock, err := lockInstallDir(ctx, i.Cache, installDir)
		if err != nil {
			return Backend{}, err
		}
		defer func() {
			if err := unlock(); err != nil {
				log.Error(err, "release install lock")
			}
		}()
	}

	dylib := hostDylibName()
	var dest string
	skip := false
	if src.IsPath() {
		dest = filepath.Join(installDir, "target", "release", dylib)
	} else {
		dest = filepath.Join(installDir, dylib)
		found := paths.IsFile(dest) &&
			paths.IsFile(filepath.Join(installDir, "Cargo.toml")) &&
			paths.IsFile(filepath.Join(installDir, "src", "lib.rs"))
		if found {
			log.Info("cached backend found", "dir", installDir)
		}
		skip = found && !i.RebuildCodegen
	}

	if skip {
		log.Info("skipping backend build")
	} else if !src.IsPath() {
		if err := writeHelperCrate(installDir, src); err != nil {
			return Backend{}, err
		}
	}

	stop := tui.StartSpinner(i.Out, fmt.Sprintf("Resolving `rustc_codegen_spirv` from %s", src))
	meta, err := querier.Query(ctx, installDir)
	stop()
	if err != nil {
		return Backend{}, err
	}
	codegen, err := meta.FindPackage(toolchain.BackendPackage)
	if err != nil {
		return Backend{}, err
	}
	channel, err := toolchain.Channel(*codegen)
	if err != nil {
		return Backend{}, fmt.Errorf("could not get toolchain channel of `rustc_codegen_spirv`: %w", err)
	}
	log.Info("selected toolchain channel", "channel", channel)

	specDir, err := targetspecs.Sync(targetspecs.Request{
		Source:   src,
		Metadata: meta,
		Cache:    i.Cache,
		Update:   !skip,
		Logger:   log,
	})
	if err != nil {
		return Backend{}, err
	}

	rustup := toolchain.Installer{Runner: i.Runner, Logger: log, Stdout: i.Stdout, Stderr: i.Stderr}
	if err := rustup.Ensure(ctx, channel, halt); err != nil {
		return Backend{}, fmt.Errorf("failed to ensure toolchain and components exist: %w", err)
	}

	if !skip {
		if err := i.build(ctx, src, installDir, channel, dest); err != nil {
			return Backend{}, err
		}
	}

	return Backend{DylibPath: dest, Channel: channel, TargetSpecDir: specDir}, nil
}

func (i Installer) build(ctx context.Context, src source.SpirvSource, installDir, channel, dest string) error {
	log := i.Logger

	// A lockfile written by a newer cargo breaks older toolchains.
	if !src.IsPath() {
		err := os.Remove(filepath.Join(installDir, "Cargo.lock"))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove `Cargo.lock` file for `rustc_codegen_spirv_dummy`: %w", err)
		}
	}

	tui.Printf(i.Out, "Compiling `rustc_codegen_spirv` from %s", src)

	args := []string{"+" + channel, "build", "--release"}
	if src.IsPath() {
		args = append(args, "-p", toolchain.BackendPackage, "--lib")
	}
	log.V(1).Info("building backend", "dir", installDir, "args", args)
	if _, err := command.Exec(ctx, i.Runner, "cargo", args, command.RunOptions{
		Dir:    installDir,
		Unset:  command.CargoUnset,
		Stdout: i.Stdout,
		Stderr: i.Stderr,
	}); err != nil {
		return err
	}

	target := filepath.Join(installDir, "target")
	built := filepath.Join(target, "release", hostDylibName())
	if !paths.IsFile(built) {
		log.Info("backend library missing after build", "path", built)
		return ErrDylibNotFound
	}
	log.Info("built backend", "path", built)
	if src.IsPath() {
		return nil
	}

	if err := os.Rename(built, dest); err != nil {
		return fmt.Errorf("failed to move `rustc_codegen_spirv` to final location: %w", err)
	}
	if i.ClearTarget {
		log.Info("clearing target dir", "path", target)
		if err := os.RemoveAll(target); err != nil {
			return fmt.Errorf("failed to remove `target` dir from compiled codegen `rustc_codegen_spirv`: %w", err)
		}
	}
	return nil
}
