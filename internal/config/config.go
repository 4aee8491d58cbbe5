// Package config merges cargo-gpu settings from defaults, the user config
// file, cargo metadata and command-line flags.
package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// DefaultTarget is the SPIR-V target built when none is configured.
const DefaultTarget = "spirv-unknown-vulkan1.2"

// Config is the fully merged configuration of one invocation.
type Config struct {
	Install InstallConfig `yaml:"install"`
	Build   BuildConfig   `yaml:"build"`
}

// InstallConfig controls how the codegen backend is installed.
type InstallConfig struct {
	ShaderCrate         string `yaml:"shader_crate"`
	SpirvBuilderSource  string `yaml:"spirv_builder_source"`
	SpirvBuilderVersion string `yaml:"spirv_builder_version"`
	RebuildCodegen      bool   `yaml:"rebuild_codegen"`
	// AutoInstallRustToolchain skips the consent prompt.
	AutoInstallRustToolchain      bool `yaml:"auto_install_rust_toolchain"`
	ClearTarget                   bool `yaml:"clear_target"`
	ForceOverwriteLockfilesV4ToV3 bool `yaml:"force_overwrite_lockfiles_v4_to_v3"`
}

// BuildConfig controls how the shader crate is compiled.
type BuildConfig struct {
	Target        string   `yaml:"target"`
	Release       bool     `yaml:"release"`
	OutputDir     string   `yaml:"output_dir"`
	ManifestFile  string   `yaml:"manifest_file"`
	Multimodule   bool     `yaml:"multimodule"`
	Capabilities  []string `yaml:"capabilities"`
	Extensions    []string `yaml:"extensions"`
	SpirvMetadata string   `yaml:"spirv_metadata"`
	Watch         bool     `yaml:"watch"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Install: InstallConfig{
			ShaderCrate: "./",
			ClearTarget: true,
		},
		Build: BuildConfig{
			Target:        DefaultTarget,
			Release:       true,
			OutputDir:     "./",
			ManifestFile:  "manifest.json",
			Capabilities:  []string{},
			Extensions:    []string{},
			SpirvMetadata: "none",
		},
	}
}

// Marshal returns the YAML encoding of the configuration.
func (c Config) Marshal() ([]byte, error) {
	buf, err := yaml.Marshal(&c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return buf, nil
}
