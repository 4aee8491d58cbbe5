package config

import (
	"github.com/spf13/pflag"
)

// Flag names shared by install and build.
const (
	FlagShaderCrate         = "shader-crate"
	FlagSpirvBuilderSource  = "spirv-builder-source"
	FlagSpirvBuilderVersion = "spirv-builder-version"
	FlagRebuildCodegen      = "rebuild-codegen"
	FlagAutoInstall         = "auto-install-rust-toolchain"
	FlagClearTarget         = "clear-target"
	FlagForceOverwrite      = "force-overwrite-lockfiles-v4-to-v3"

	FlagTarget        = "target"
	FlagDebug         = "debug"
	FlagOutputDir     = "output-dir"
	FlagManifestFile  = "manifest-file"
	FlagMultimodule   = "multimodule"
	FlagCapabilities  = "capabilities"
	FlagExtensions    = "extensions"
	FlagSpirvMetadata = "spirv-metadata"
	FlagWatch         = "watch"
)

// RegisterShaderCrateFlag adds only --shader-crate, for commands that just
// need to locate the crate.
func RegisterShaderCrateFlag(fs *pflag.FlagSet) {
	fs.String(FlagShaderCrate, Default().Install.ShaderCrate, "Directory containing the shader crate to compile")
}

// RegisterInstallFlags adds the backend install flags to fs.
func RegisterInstallFlags(fs *pflag.FlagSet) {
	def := Default().Install
	RegisterShaderCrateFlag(fs)
	fs.String(FlagSpirvBuilderSource, def.SpirvBuilderSource, "Source of spirv-builder dependency, e.g. https://github.com/Rust-GPU/rust-gpu")
	fs.String(FlagSpirvBuilderVersion, def.SpirvBuilderVersion, "Version of spirv-builder dependency: a semantic version for crates.io or a git revision with --spirv-builder-source")
	fs.Bool(FlagRebuildCodegen, def.RebuildCodegen, "Force rustc_codegen_spirv to be rebuilt")
	fs.Bool(FlagAutoInstall, def.AutoInstallRustToolchain, "Assume yes to installing the required Rust toolchain and components")
	fs.Bool(FlagClearTarget, def.ClearTarget, "Clear the target dir of the backend build after a successful build")
	fs.Bool(FlagForceOverwrite, def.ForceOverwriteLockfilesV4ToV3, "Temporarily rewrite v4 Cargo.lock files to v3 for toolchains older than Rust 1.83.0")
}

// RegisterBuildFlags adds the install flags plus the shader build flags.
func RegisterBuildFlags(fs *pflag.FlagSet) {
	def := Default().Build
	RegisterInstallFlags(fs)
	fs.String(FlagTarget, def.Target, "Shader target")
	fs.Bool(FlagDebug, !def.Release, "Build in debug mode")
	fs.String(FlagOutputDir, def.OutputDir, "Directory to write the compiled shaders to")
	fs.String(FlagManifestFile, def.ManifestFile, "File name of the shader manifest written to the output dir")
	fs.Bool(FlagMultimodule, def.Multimodule, "Emit one SPIR-V module per entry point")
	fs.StringSlice(FlagCapabilities, def.Capabilities, "Enable SPIR-V capabilities, e.g. Int8,Float64")
	fs.StringSlice(FlagExtensions, def.Extensions, "Enable SPIR-V extensions, e.g. SPV_KHR_vulkan_memory_model")
	fs.String(FlagSpirvMetadata, def.SpirvMetadata, "Debug metadata to embed: none, name-variables or full")
	fs.Bool(FlagWatch, def.Watch, "Rebuild the shaders whenever their sources change")
}

// FlagLayer collects the flags the user actually passed. Flags that were
// never registered on fs are ignored.
func FlagLayer(fs *pflag.FlagSet) (Layer, error) {
	var l Layer
	var err error
	str := func(name string) *string {
		if err != nil || !changed(fs, name) {
			return nil
		}
		var v string
		v, err = fs.GetString(name)
		return &v
	}
	boolean := func(name string) *bool {
		if err != nil || !changed(fs, name) {
			return nil
		}
		var v bool
		v, err = fs.GetBool(name)
		return &v
	}
	slice := func(name string) []string {
		if err != nil || !changed(fs, name) {
			return nil
		}
		var v []string
		v, err = fs.GetStringSlice(name)
		return v
	}

	l.Install.ShaderCrate = str(FlagShaderCrate)
	l.Install.SpirvBuilderSource = str(FlagSpirvBuilderSource)
	l.Install.SpirvBuilderVersion = str(FlagSpirvBuilderVersion)
	l.Install.RebuildCodegen = boolean(FlagRebuildCodegen)
	l.Install.AutoInstallRustToolchain = boolean(FlagAutoInstall)
	l.Install.ClearTarget = boolean(FlagClearTarget)
	l.Install.ForceOverwriteLockfilesV4ToV3 = boolean(FlagForceOverwrite)

	l.Build.Target = str(FlagTarget)
	if debug := boolean(FlagDebug); debug != nil {
		release := !*debug
		l.Build.Release = &release
	}
	l.Build.OutputDir = str(FlagOutputDir)
	l.Build.ManifestFile = str(FlagManifestFile)
	l.Build.Multimodule = boolean(FlagMultimodule)
	l.Build.Capabilities = slice(FlagCapabilities)
	l.Build.Extensions = slice(FlagExtensions)
	l.Build.SpirvMetadata = str(FlagSpirvMetadata)
	l.Build.Watch = boolean(FlagWatch)

	if err != nil {
		return Layer{}, err
	}
	return l, nil
}

func changed(fs *pflag.FlagSet, name string) bool {
	return fs.Lookup(name) != nil && fs.Changed(name)
}
