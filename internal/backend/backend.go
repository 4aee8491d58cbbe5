// Package backend installs rustc_codegen_spirv for a shader crate and caches
// the compiled dylib per rust-gpu source.
package backend

import (
	"cargogpu/internal/spirvbuild"
	"cargogpu/internal/targetspecs"
)

// Backend is an installed codegen backend ready to compile shaders.
type Backend struct {
	// DylibPath is the compiled rustc_codegen_spirv library.
	DylibPath string
	// Channel is the toolchain the backend was built with and must run on.
	Channel       string
	TargetSpecDir string
}

// TargetSpecPath is the spec file for target.
func (b Backend) TargetSpecPath(target string) string {
	return targetspecs.SpecPath(b.TargetSpecDir, target)
}

// Configure points a shader build at this backend.
func (b Backend) Configure(opts *spirvbuild.Options, target string) {
	opts.BackendPath = b.DylibPath
	opts.Toolchain = b.Channel
	opts.Target = target
	opts.TargetSpec = b.TargetSpecPath(target)
}
