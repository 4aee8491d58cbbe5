// Package gpubuild compiles a shader crate with the installed backend and
// records where each entry point ended up.
package gpubuild

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"

	"cargogpu/internal/backend"
	"cargogpu/internal/config"
	"cargogpu/internal/linkage"
	"cargogpu/internal/lockfile"
	"cargogpu/internal/spirvbuild"
	"cargogpu/internal/toolchain"
	"cargogpu/internal/tui"
)

// ErrNoModules means a multimodule build reported no modules.
var ErrNoModules = errors.New("no shader modules to compile")

// BackendInstaller produces the backend a shader crate is compiled with.
type BackendInstaller interface {
	Install(ctx context.Context, shaderCrate string, halt toolchain.Halt) (backend.Backend, error)
}

// ShaderBuilder compiles a shader crate.
type ShaderBuilder interface {
	Build(ctx context.Context, opts spirvbuild.Options) (spirvbuild.CompileResult, error)
}

// Deps are the collaborators of Run.
type Deps struct {
	Installer BackendInstaller
	Halt      toolchain.Halt
	Versions  lockfile.RustcVersioner
	Builder   ShaderBuilder
	Logger    logr.Logger

	// Out receives user-facing messages; Stdout and Stderr receive cargo output.
	Out    io.Writer
	Stdout io.Writer
	Stderr io.Writer
}

// Run installs the backend, compiles the shader crate and writes the
// linkage manifest. With cfg.Build.Watch it keeps rebuilding on source
// changes until ctx is cancelled.
func Run(ctx context.Context, cfg config.Config, deps Deps) error {
	be, err := deps.Installer.Install(ctx, cfg.Install.ShaderCrate, deps.Halt)
	if err != nil {
		return err
	}

	locks, err := lockfile.New(ctx, lockfile.Options{
		ShaderCrate:    cfg.Install.ShaderCrate,
		Channel:        be.Channel,
		ForceOverwrite: cfg.Install.ForceOverwriteLockfilesV4ToV3,
		Versions:       deps.Versions,
		Logger:         deps.Logger,
	})
	if err != nil {
		return err
	}
	defer locks.Close()

	j, err := prepare(cfg, be)
	if err != nil {
		locks.Abort()
		return err
	}

	// Watch mode starts from a complete build so the manifest exists.
	tui.Printf(deps.Out, "Compiling shaders at %s...", j.crate)
	_, err = j.run(ctx, deps)
	if err == nil && cfg.Build.Watch {
		err = watch(ctx, j, deps)
	}
	if err != nil {
		locks.Abort()
		return err
	}
	return locks.Finish()
}

// job is one resolved shader build.
type job struct {
	crate    string
	output   string
	manifest string
	opts     spirvbuild.Options
}

func prepare(cfg config.Config, be backend.Backend) (job, error) {
	meta, err := spirvbuild.ParseSpirvMetadata(cfg.Build.SpirvMetadata)
	if err != nil {
		return job{}, err
	}

	output, err := filepath.Abs(cfg.Build.OutputDir)
	if err != nil {
		return job{}, fmt.Errorf("resolve output dir: %w", err)
	}
	if err := os.MkdirAll(output, 0o755); err != nil {
		return job{}, fmt.Errorf("create output dir '%s': %w", output, err)
	}
	if resolved, err := filepath.EvalSymlinks(output); err == nil {
		output = resolved
	}

	crate, err := filepath.Abs(cfg.Install.ShaderCrate)
	if err != nil {
		return job{}, fmt.Errorf("resolve shader crate: %w", err)
	}
	if _, err := os.Stat(crate); err != nil {
		cwd, _ := os.Getwd()
		return job{}, fmt.Errorf("shader crate '%s' does not exist. (Current dir is '%s')", crate, cwd)
	}
	if resolved, err := filepath.EvalSymlinks(crate); err == nil {
		crate = resolved
	}

	opts := spirvbuild.Options{
		CrateDir:      crate,
		Release:       cfg.Build.Release,
		Multimodule:   cfg.Build.Multimodule,
		Capabilities:  cfg.Build.Capabilities,
		Extensions:    cfg.Build.Extensions,
		SpirvMetadata: meta,
	}
	be.Configure(&opts, cfg.Build.Target)

	return job{
		crate:    crate,
		output:   output,
		manifest: filepath.Join(output, cfg.Build.ManifestFile),
		opts:     opts,
	}, nil
}

// run compiles once, copies every module into the output dir and writes
// the manifest.
func (j job) run(ctx context.Context, deps Deps) ([]linkage.Linkage, error) {
	opts := j.opts
	opts.Stdout = deps.Stdout
	opts.Stderr = deps.Stderr

	result, err := deps.Builder.Build(ctx, opts)
	if err != nil {
		return nil, err
	}

	if result.Module.IsMulti() {
		if len(result.Module.Multi) == 0 {
			return nil, ErrNoModules
		}
	} else if err := checkEntryPoints(result, deps.Logger); err != nil {
		return nil, err
	}

	var links []linkage.Linkage
	for _, m := range result.Modules() {
		dst := filepath.Join(j.output, filepath.Base(m.Path))
		deps.Logger.V(1).Info("copying shader module", "from", m.Path, "to", dst)
		if err := copyFile(m.Path, dst); err != nil {
			return nil, err
		}
		links = append(links, linkage.New(m.Entry, j.relative(dst)))
	}

	linkage.Sort(links)
	if err := linkage.WriteManifest(j.manifest, links); err != nil {
		return nil, err
	}
	deps.Logger.Info("wrote manifest", "path", j.manifest, "entries", len(links))
	return links, nil
}

// relative makes path relative to the shader crate when that is possible.
func (j job) relative(path string) string {
	rel, err := filepath.Rel(j.crate, path)
	if err != nil {
		return path
	}
	return rel
}

// checkEntryPoints compares the reported entry points with the ones the
// single module declares.
func checkEntryPoints(result spirvbuild.CompileResult, log logr.Logger) error {
	m, err := linkage.ReadModuleFile(result.Module.Single)
	if err != nil {
		return err
	}
	declared := make(map[string]bool, len(m.EntryPoints))
	for _, ep := range m.EntryPoints {
		declared[ep.Name] = true
	}
	for _, entry := range result.EntryPoints {
		if !declared[entry] && !declared[fnName(entry)] {
			return fmt.Errorf("entry point `%s` is missing from %s", entry, result.Module.Single)
		}
	}
	log.V(1).Info("entry points verified", "module", result.Module.Single, "count", len(result.EntryPoints))
	return nil
}

func fnName(entry string) string {
	return linkage.New(entry, "").FnName()
}

func copyFile(src, dst string) error {
	if sameFile(src, dst) {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open shader module: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create shader module copy: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy shader module to %s: %w", dst, err)
	}
	return out.Close()
}

func sameFile(a, b string) bool {
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}
