package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"cargogpu/internal/paths"
)

// ValidationResult captures a single validation finding.
type ValidationResult struct {
	Level   string `json:"level"` // "error" or "warning"
	Message string `json:"message"`
}

// Known lists the values the merged config is checked against.
type Known struct {
	// Targets are the legacy targets; backends may ship more, so unknown
	// targets are only a warning.
	Targets       []string
	Capabilities  []string
	SpirvMetadata []string
}

// Validate checks the merged config and returns structured findings.
func (c Config) Validate(known Known) []ValidationResult {
	var results []ValidationResult
	results = append(results, c.validateShaderCrate()...)
	results = append(results, c.validateSourcePin()...)
	results = append(results, c.validateBuild(known)...)
	return results
}

// Errors filters results down to the error level.
func Errors(results []ValidationResult) []ValidationResult {
	var errs []ValidationResult
	for _, r := range results {
		if r.Level == "error" {
			errs = append(errs, r)
		}
	}
	return errs
}

func (c Config) validateShaderCrate() []ValidationResult {
	manifest := filepath.Join(c.Install.ShaderCrate, "Cargo.toml")
	if !paths.IsFile(manifest) {
		return []ValidationResult{{
			Level:   "error",
			Message: fmt.Sprintf("shader crate %q has no Cargo.toml", c.Install.ShaderCrate),
		}}
	}
	return nil
}

func (c Config) validateSourcePin() []ValidationResult {
	if c.Install.SpirvBuilderSource != "" && c.Install.SpirvBuilderVersion == "" {
		return []ValidationResult{{
			Level:   "warning",
			Message: "spirv_builder_source is ignored without spirv_builder_version",
		}}
	}
	return nil
}

func (c Config) validateBuild(known Known) []ValidationResult {
	var results []ValidationResult
	b := c.Build

	if strings.TrimSpace(b.ManifestFile) == "" {
		results = append(results, ValidationResult{Level: "error", Message: "manifest_file must not be empty"})
	} else if filepath.Base(b.ManifestFile) != b.ManifestFile {
		results = append(results, ValidationResult{
			Level:   "error",
			Message: fmt.Sprintf("manifest_file %q must be a file name, not a path", b.ManifestFile),
		})
	}

	if len(known.SpirvMetadata) > 0 && !slices.Contains(known.SpirvMetadata, b.SpirvMetadata) {
		results = append(results, ValidationResult{
			Level:   "error",
			Message: fmt.Sprintf("spirv_metadata %q is not one of %s", b.SpirvMetadata, strings.Join(known.SpirvMetadata, ", ")),
		})
	}

	if len(known.Targets) > 0 && !slices.Contains(known.Targets, b.Target) {
		results = append(results, ValidationResult{
			Level:   "warning",
			Message: fmt.Sprintf("target %q is not a bundled target; it must be provided by the backend's target specs", b.Target),
		})
	}

	if len(known.Capabilities) > 0 {
		for _, capability := range b.Capabilities {
			if !slices.Contains(known.Capabilities, capability) {
				results = append(results, ValidationResult{
					Level:   "warning",
					Message: fmt.Sprintf("unknown SPIR-V capability %q", capability),
				})
			}
		}
	}
	return results
}
