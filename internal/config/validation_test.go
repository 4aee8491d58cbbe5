package config

import (
	"os"
	"path/filepath"
	"testing"
)

func crateDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "Cargo.toml"), []byte("[package]\nname = \"shader\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

var testKnown = Known{
	Targets:       []string{"spirv-unknown-vulkan1.1", "spirv-unknown-vulkan1.2"},
	Capabilities:  []string{"Int8", "Matrix", "Shader"},
	SpirvMetadata: []string{"none", "name-variables", "full"},
}

func TestValidate_Defaults(t *testing.T) {
	cfg := Default()
	cfg.Install.ShaderCrate = crateDir(t)

	if results := cfg.Validate(testKnown); len(results) != 0 {
		t.Fatalf("expected no results, got %v", results)
	}
}

func TestValidate_MissingCrate(t *testing.T) {
	cfg := Default()
	cfg.Install.ShaderCrate = t.TempDir()

	errs := Errors(cfg.Validate(testKnown))
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d: %v", len(errs), errs)
	}
}

func TestValidate_Build(t *testing.T) {
	cfg := Default()
	cfg.Install.ShaderCrate = crateDir(t)
	cfg.Build.ManifestFile = "out/manifest.json"
	cfg.Build.SpirvMetadata = "verbose"
	cfg.Build.Target = "spirv-unknown-vulkan1.3"
	cfg.Build.Capabilities = []string{"Int8", "Telepathy"}

	results := cfg.Validate(testKnown)
	errs := Errors(results)
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", len(errs), errs)
	}
	if warnings := len(results) - len(errs); warnings != 2 {
		t.Fatalf("expected 2 warnings, got %d: %v", warnings, results)
	}
}

func TestValidate_SourceWithoutVersion(t *testing.T) {
	cfg := Default()
	cfg.Install.ShaderCrate = crateDir(t)
	cfg.Install.SpirvBuilderSource = "https://github.com/Rust-GPU/rust-gpu"

	results := cfg.Validate(Known{})
	if len(results) != 1 || results[0].Level != "warning" {
		t.Fatalf("expected a single warning, got %v", results)
	}
}
