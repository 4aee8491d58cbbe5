package source

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/mod/semver"

	"cargogpu/internal/metadata"
	"cargogpu/internal/paths"
)

// StdPackage is the crate every shader depends on; its source decides which
// backend gets installed.
const StdPackage = "spirv-std"

var crateIORegistries = []string{
	"registry+https://github.com/rust-lang/crates.io-index",
	"sparse+https://index.crates.io/",
}

var (
	ErrInvalidVersion      = errors.New("invalid version")
	ErrMissingDependency   = errors.New("missing rust-gpu dependency")
	ErrAmbiguousSource     = errors.New("both git and crates.io were found at source")
	ErrInvalidGitSource    = errors.New("invalid git format of source")
	ErrUnknownSource       = errors.New("unknown format of source")
	ErrInvalidManifestPath = errors.New("invalid manifest path")
)

// Resolve determines the rust-gpu source for the shader crate in crateDir.
// An explicit src and version pin a git repository; a version alone selects a
// crates.io release; otherwise the crate's own spirv-std dependency decides.
func Resolve(ctx context.Context, q metadata.Querier, crateDir, src, version string) (SpirvSource, error) {
	switch {
	case src != "" && version != "":
		return Repository(src, version), nil
	case version != "":
		if !ValidVersion(version) {
			return SpirvSource{}, fmt.Errorf("%w: %s", ErrInvalidVersion, version)
		}
		return Registry(version), nil
	default:
		return FromShaderCrate(ctx, q, crateDir)
	}
}

// FromShaderCrate inspects the resolved dependency graph of the shader crate.
func FromShaderCrate(ctx context.Context, q metadata.Querier, crateDir string) (SpirvSource, error) {
	meta, err := q.Query(ctx, crateDir)
	if err != nil {
		return SpirvSource{}, fmt.Errorf("query shader crate metadata: %w", err)
	}
	pkg, err := meta.FindPackage(StdPackage)
	if err != nil {
		return SpirvSource{}, fmt.Errorf("%w: %w", ErrMissingDependency, err)
	}
	return ParsePackage(*pkg)
}

// ParsePackage classifies a resolved spirv-std package.
func ParsePackage(pkg metadata.Package) (SpirvSource, error) {
	if pkg.Source == nil {
		root := filepath.Dir(filepath.Dir(filepath.Dir(pkg.ManifestPath)))
		if !paths.IsDir(root) {
			return SpirvSource{}, fmt.Errorf("%w %s", ErrInvalidManifestPath, pkg.ManifestPath)
		}
		return LocalPath(root, pkg.Version), nil
	}

	repr := *pkg.Source
	isCratesIO := isCratesIOSource(repr)
	isGit := strings.HasPrefix(repr, "git+")
	switch {
	case isCratesIO && isGit:
		return SpirvSource{}, fmt.Errorf("%w %s", ErrAmbiguousSource, repr)
	case isCratesIO:
		return Registry(pkg.Version), nil
	case isGit:
		return ParseGitSource(repr)
	default:
		return SpirvSource{}, fmt.Errorf("%w %s", ErrUnknownSource, repr)
	}
}

// ParseGitSource parses a cargo git source such as
// "git+https://github.com/Rust-GPU/rust-gpu?rev=86fc4803#86fc4803".
func ParseGitSource(repr string) (SpirvSource, error) {
	if !strings.HasPrefix(repr, "git+") {
		return SpirvSource{}, fmt.Errorf("%w %s", ErrInvalidGitSource, repr)
	}
	rest := repr[len("git+"):]

	hash := strings.IndexByte(rest, '#')
	if hash < 0 {
		return SpirvSource{}, fmt.Errorf("%w %s", ErrInvalidGitSource, repr)
	}
	urlEnd := hash
	if q := strings.IndexByte(rest[:hash], '?'); q >= 0 {
		urlEnd = q
	}
	return Repository(rest[:urlEnd], rest[hash+1:]), nil
}

func isCratesIOSource(repr string) bool {
	for _, registry := range crateIORegistries {
		if strings.Contains(repr, registry) {
			return true
		}
	}
	return false
}

// ValidVersion reports whether version is a full semantic version such as
// "0.9.0" or "0.10.0-alpha.1".
func ValidVersion(version string) bool {
	v := "v" + version
	if !semver.IsValid(v) {
		return false
	}
	core, _, _ := strings.Cut(v, "+")
	return semver.Canonical(v) == core
}
