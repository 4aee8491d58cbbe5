package backend

import (
	"fmt"
	"os"
	"path/filepath"

	"cargogpu/internal/source"
)

const helperManifestHeader = `[package]
name = "rustc_codegen_spirv_dummy"
version = "0.1.0"
edition = "2021"

[dependencies.spirv-builder]
package = "rustc_codegen_spirv"
`

// HelperManifest renders the Cargo.toml of the helper crate whose only job
// is to make cargo fetch and build rustc_codegen_spirv from src.
func HelperManifest(src source.SpirvSource) string {
	var spec string
	switch src.Kind() {
	case source.KindRepository:
		spec = fmt.Sprintf("git = %q\nrev = %q", src.URL(), src.Revision())
	case source.KindLocalPath:
		root := filepath.ToSlash(filepath.Join(src.Root(), "crates", "spirv-builder"))
		spec = fmt.Sprintf("path = %q\nversion = %q", root, src.Version())
	default:
		spec = fmt.Sprintf("version = %q", src.Version())
	}
	return helperManifestHeader + spec + "\n"
}

// writeHelperCrate lays out the helper crate in dir.
func writeHelperCrate(dir string, src source.SpirvSource) error {
	srcDir := filepath.Join(dir, "src")
	if err := os.MkdirAll(srcDir, 0o755); err != nil {
		return fmt.Errorf("failed to create `src` directory for `rustc_codegen_spirv_dummy`: %w", err)
	}
	if err := os.WriteFile(filepath.Join(srcDir, "lib.rs"), nil, 0o644); err != nil {
		return fmt.Errorf("failed to create `src/lib.rs` file for `rustc_codegen_spirv_dummy`: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "Cargo.toml"), []byte(HelperManifest(src)), 0o644); err != nil {
		return fmt.Errorf("failed to write `Cargo.toml` file for `rustc_codegen_spirv_dummy`: %w", err)
	}
	return nil
}
