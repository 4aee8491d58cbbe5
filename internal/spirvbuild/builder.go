// Package spirvbuild compiles a shader crate to SPIR-V with an installed
// rustc_codegen_spirv backend.
package spirvbuild

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-logr/logr"

	"cargogpu/internal/command"
	"cargogpu/internal/metadata"
)

// SpirvMetadata controls how much debug metadata the backend embeds.
type SpirvMetadata string

const (
	MetadataNone     SpirvMetadata = "none"
	MetadataNameVars SpirvMetadata = "name-variables"
	MetadataFull     SpirvMetadata = "full"
)

// SpirvMetadataValues lists the accepted --spirv-metadata values.
func SpirvMetadataValues() []string {
	return []string{string(MetadataNone), string(MetadataNameVars), string(MetadataFull)}
}

// ParseSpirvMetadata accepts the values of --spirv-metadata.
func ParseSpirvMetadata(s string) (SpirvMetadata, error) {
	switch v := SpirvMetadata(strings.ToLower(s)); v {
	case MetadataNone, MetadataNameVars, MetadataFull:
		return v, nil
	case "":
		return MetadataNone, nil
	}
	return "", fmt.Errorf("invalid spirv metadata %q (want none, name-variables or full)", s)
}

// Options describes one shader crate build.
type Options struct {
	CrateDir string
	// BackendPath, Toolchain and TargetSpec are filled in by the backend.
	BackendPath   string
	Toolchain     string
	TargetSpec    string
	Target        string
	Release       bool
	Multimodule   bool
	Capabilities  []string
	Extensions    []string
	SpirvMetadata SpirvMetadata
	Stdout        io.Writer
	Stderr        io.Writer
}

var ErrMissingBackend = errors.New("no rustc_codegen_spirv backend configured")

// Builder runs cargo against the shader crate.
type Builder struct {
	Runner   command.Runner
	Metadata metadata.Querier
	Logger   logr.Logger
}

// Build compiles the crate and returns the result emitted by the backend.
func (b Builder) Build(ctx context.Context, opts Options) (CompileResult, error) {
	if opts.BackendPath == "" || opts.Toolchain == "" || opts.TargetSpec == "" {
		return CompileResult{}, ErrMissingBackend
	}
	crateDir, err := filepath.Abs(opts.CrateDir)
	if err != nil {
		return CompileResult{}, fmt.Errorf("resolve shader crate: %w", err)
	}

	meta, err := b.Metadata.Query(ctx, crateDir)
	if err != nil {
		return CompileResult{}, fmt.Errorf("query shader crate metadata: %w", err)
	}
	pkg, err := meta.PackageByManifestPath(filepath.Join(crateDir, "Cargo.toml"))
	if err != nil {
		return CompileResult{}, err
	}

	targetDir := TargetDir(crateDir)
	args := Args(opts)
	env := []string{
		"CARGO_ENCODED_RUSTFLAGS=" + strings.Join(RustFlags(opts), "\x1f"),
		"CARGO_TARGET_DIR=" + targetDir,
	}
	b.Logger.Info("building shader crate", "crate", pkg.Name, "target", opts.Target, "release", opts.Release)
	b.Logger.V(1).Info("cargo invocation", "args", args, "env", env)

	if _, err := command.Exec(ctx, b.Runner, "cargo", args, command.RunOptions{
		Dir:    crateDir,
		Env:    env,
		Stdout: opts.Stdout,
		Stderr: opts.Stderr,
	}); err != nil {
		return CompileResult{}, fmt.Errorf("build shader crate: %w", err)
	}

	resultPath := ResultPath(targetDir, opts, pkg.Name)
	result, err := ReadResult(resultPath)
	if err != nil {
		return CompileResult{}, err
	}
	return result, nil
}

// Args are the cargo arguments for opts.
func Args(opts Options) []string {
	args := []string{
		"+" + opts.Toolchain,
		"build",
		"--lib",
		"--target", opts.TargetSpec,
		"-Zbuild-std=core",
		"-Zbuild-std-features=compiler-builtins-mem",
	}
	if opts.Release {
		args = append(args, "--release")
	}
	return args
}

// RustFlags are the rustc flags that select the backend and forward the
// codegen options.
func RustFlags(opts Options) []string {
	flags := []string{
		"-Zcodegen-backend=" + opts.BackendPath,
		"-Zbinary-dep-depinfo",
		"-Csymbol-mangling-version=v0",
		"-Zcrate-attr=feature(register_tool)",
		"-Zcrate-attr=register_tool(rust_gpu)",
		"-Coverflow-checks=off",
		"-Cdebug-assertions=off",
	}
	var features []string
	for _, c := range opts.Capabilities {
		features = append(features, "+"+c)
	}
	for _, e := range opts.Extensions {
		features = append(features, "+ext:"+e)
	}
	if len(features) > 0 {
		flags = append(flags, "-Ctarget-feature="+strings.Join(features, ","))
	}

	var llvm []string
	if opts.Multimodule {
		llvm = append(llvm, "--module-output=multiple")
	}
	if opts.SpirvMetadata != "" && opts.SpirvMetadata != MetadataNone {
		llvm = append(llvm, "--spirv-metadata="+string(opts.SpirvMetadata))
	}
	if len(llvm) > 0 {
		flags = append(flags, "-Cllvm-args="+strings.Join(llvm, " "))
	}
	return flags
}

// TargetDir keeps shader artifacts apart from the crate's host build.
func TargetDir(crateDir string) string {
	return filepath.Join(crateDir, "target", "spirv-builder")
}

// ResultPath is where the backend writes the compile result for crate.
func ResultPath(targetDir string, opts Options, crate string) string {
	profile := "debug"
	if opts.Release {
		profile = "release"
	}
	name := strings.ReplaceAll(crate, "-", "_") + ".spv.json"
	return filepath.Join(targetDir, opts.Target, profile, name)
}

// CompileResult is the backend's description of the emitted modules.
type CompileResult struct {
	EntryPoints []string     `json:"entry_points"`
	Module      ModuleResult `json:"module"`
}

// ModuleResult is either one module for every entry point or one module per
// entry point.
type ModuleResult struct {
	Single string
	Multi  map[string]string
}

func (m ModuleResult) IsMulti() bool { return m.Multi != nil }

func (m *ModuleResult) UnmarshalJSON(data []byte) error {
	var raw struct {
		SingleModule *string           `json:"SingleModule"`
		MultiModule  map[string]string `json:"MultiModule"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch {
	case raw.SingleModule != nil:
		m.Single = *raw.SingleModule
	case raw.MultiModule != nil:
		m.Multi = raw.MultiModule
	default:
		return errors.New("module result has neither SingleModule nor MultiModule")
	}
	return nil
}

func (m ModuleResult) MarshalJSON() ([]byte, error) {
	if m.IsMulti() {
		return json.Marshal(map[string]map[string]string{"MultiModule": m.Multi})
	}
	return json.Marshal(map[string]string{"SingleModule": m.Single})
}

// Modules returns the entry point to module path pairs, sorted by entry
// point.
func (r CompileResult) Modules() []EntryModule {
	var out []EntryModule
	if r.Module.IsMulti() {
		for entry, path := range r.Module.Multi {
			out = append(out, EntryModule{Entry: entry, Path: path})
		}
	} else {
		for _, entry := range r.EntryPoints {
			out = append(out, EntryModule{Entry: entry, Path: r.Module.Single})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Entry < out[j].Entry })
	return out
}

// EntryModule pairs an entry point with the module that contains it.
type EntryModule struct {
	Entry string
	Path  string
}

// ReadResult loads a compile result written by the backend.
func ReadResult(path string) (CompileResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return CompileResult{}, fmt.Errorf("read compile result: %w", err)
	}
	var result CompileResult
	if err := json.Unmarshal(data, &result); err != nil {
		return CompileResult{}, fmt.Errorf("parse compile result %s: %w", path, err)
	}
	return result, nil
}
