// Package targetspecs provides the JSON target specifications rustc needs to
// compile for SPIR-V targets such as spirv-unknown-vulkan1.2.
//
// Backends that depend on rustc_codegen_spirv-target-specs ship their own
// specs and those are preferred. Older backends need the frozen legacy set
// embedded in this binary, which must never change.
package targetspecs

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-logr/logr"

	"cargogpu/internal/metadata"
	"cargogpu/internal/paths"
	"cargogpu/internal/source"
)

// DependencyPackage ships target specs alongside newer backends.
const DependencyPackage = "rustc_codegen_spirv-target-specs"

const dirName = "target-specs"

//go:embed legacy/*.json
var legacyFS embed.FS

var ErrInvalidLegacy = errors.New("could not find `target-specs` directory within `" + DependencyPackage + "` dependency")

// WriteOp names the filesystem step that failed while writing specs.
type WriteOp int

const (
	CreateDir WriteOp = iota
	WriteFile
)

// WriteError reports a failure to materialize the legacy target specs.
type WriteError struct {
	Op   WriteOp
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	if e.Op == CreateDir {
		return fmt.Sprintf("failed to create target specs directory at %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("failed to write target spec file at %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// CopyError reports a failure to copy specs out of the dependency.
type CopyError struct {
	Src string
	Dst string
	Err error
}

func (e *CopyError) Error() string {
	return fmt.Sprintf("could not copy target specs files from %s to %s: %v", e.Src, e.Dst, e.Err)
}

func (e *CopyError) Unwrap() error { return e.Err }

// Request describes one target spec resolution.
type Request struct {
	Source source.SpirvSource
	// Metadata is the resolved graph of the helper crate or local checkout.
	Metadata *metadata.Metadata
	Cache    paths.Cache
	// Update rewrites the files on disk. Cache hits only resolve the path.
	Update bool
	Logger logr.Logger
}

// Sync returns the directory holding the target specs for the request's
// backend and refreshes its contents when Update is set.
func Sync(req Request) (string, error) {
	log := req.Logger
	log.Info("resolving target specs", "update", req.Update)

	dst := filepath.Join(req.Source.InstallDir(req.Cache), dirName)

	if pkg, err := req.Metadata.FindPackage(DependencyPackage); err == nil {
		src := filepath.Join(pkg.ManifestDir(), dirName)
		if !paths.IsDir(src) {
			return "", ErrInvalidLegacy
		}
		log.V(1).Info("found target specs dependency", "dir", src)

		if req.Source.IsPath() {
			log.Info("source is a local path, using target specs in place", "dir", src)
			return src, nil
		}
		if req.Update {
			log.Info("copying target specs", "from", src, "to", dst)
			if err := copySpecFiles(src, dst); err != nil {
				return "", &CopyError{Src: src, Dst: dst, Err: err}
			}
		}
		return dst, nil
	}

	if req.Source.IsPath() {
		// The install dir is the user's checkout; never write into it.
		dst = req.Cache.LegacyTargetSpecsDir()
	}
	log.Info("using legacy target specs", "dir", dst)
	if req.Update {
		if err := WriteLegacy(dst); err != nil {
			return "", err
		}
	}
	return dst, nil
}

// WriteLegacy writes the embedded legacy specs into dir.
func WriteLegacy(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &WriteError{Op: CreateDir, Path: dir, Err: err}
	}
	entries, err := fs.ReadDir(legacyFS, "legacy")
	if err != nil {
		return &WriteError{Op: WriteFile, Path: dir, Err: err}
	}
	for _, entry := range entries {
		dest := filepath.Join(dir, entry.Name())
		contents, err := legacyFS.ReadFile(path.Join("legacy", entry.Name()))
		if err != nil {
			return &WriteError{Op: WriteFile, Path: dest, Err: err}
		}
		if err := os.WriteFile(dest, contents, 0o644); err != nil {
			return &WriteError{Op: WriteFile, Path: dest, Err: err}
		}
	}
	return nil
}

// LegacyFiles lists the embedded spec file names.
func LegacyFiles() []string {
	entries, _ := fs.ReadDir(legacyFS, "legacy")
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names
}

// Targets lists the Vulkan targets that can be passed to `build --target`.
func Targets() []string {
	var targets []string
	for _, name := range LegacyFiles() {
		if strings.Contains(name, "vulkan") {
			targets = append(targets, strings.TrimSuffix(name, ".json"))
		}
	}
	return targets
}

// SpecPath is the spec file for target inside dir.
func SpecPath(dir, target string) string {
	return filepath.Join(dir, target+".json")
}

// copySpecFiles copies the regular files of src into dst. Spec directories
// are flat, so subdirectories are ignored.
func copySpecFiles(src, dst string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		file := filepath.Join(src, entry.Name())
		if !paths.IsFile(file) {
			continue
		}
		contents, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dst, entry.Name()), contents, 0o644); err != nil {
			return err
		}
	}
	return nil
}
