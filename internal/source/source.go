// Package source classifies where a shader crate's rust-gpu dependency comes
// from and maps that origin to a cache directory.
package source

import (
	"os"
	"path/filepath"
	"strings"

	"cargogpu/internal/paths"
)

// Kind selects the active variant of a SpirvSource.
type Kind int

const (
	KindRegistry Kind = iota
	KindRepository
	KindLocalPath
)

func (k Kind) String() string {
	switch k {
	case KindRegistry:
		return "registry"
	case KindRepository:
		return "repository"
	case KindLocalPath:
		return "path"
	default:
		return "unknown"
	}
}

// revisionPrefixLen bounds how much of a git revision ends up in the display
// string and therefore in the cache directory name.
const revisionPrefixLen = 8

// SpirvSource is the origin of the rust-gpu crates. The zero value is not
// valid; use Registry, Repository or LocalPath.
type SpirvSource struct {
	kind     Kind
	version  string
	url      string
	revision string
	root     string
}

// Registry is a crates.io release at version.
func Registry(version string) SpirvSource {
	return SpirvSource{kind: KindRegistry, version: version}
}

// Repository is a git checkout of url pinned to revision.
func Repository(url, revision string) SpirvSource {
	return SpirvSource{kind: KindRepository, url: url, revision: revision}
}

// LocalPath is a rust-gpu checkout on disk at root.
func LocalPath(root, version string) SpirvSource {
	return SpirvSource{kind: KindLocalPath, root: root, version: version}
}

func (s SpirvSource) Kind() Kind { return s.kind }

// Version is meaningful for registry and local path sources.
func (s SpirvSource) Version() string { return s.version }

// URL is meaningful for repository sources.
func (s SpirvSource) URL() string { return s.url }

// Revision is the full, untruncated git revision of a repository source.
func (s SpirvSource) Revision() string { return s.revision }

// Root is the checkout directory of a local path source.
func (s SpirvSource) Root() string { return s.root }

func (s SpirvSource) IsPath() bool { return s.kind == KindLocalPath }

func (s SpirvSource) String() string {
	switch s.kind {
	case KindRepository:
		rev := s.revision
		if len(rev) > revisionPrefixLen {
			rev = rev[:revisionPrefixLen]
		}
		return s.url + "+" + rev
	case KindLocalPath:
		return s.root + "+" + s.version
	default:
		return s.version
	}
}

// InstallDir is where the backend for this source is built and cached. A
// local checkout is built in place.
func (s SpirvSource) InstallDir(cache paths.Cache) string {
	if s.kind == KindLocalPath {
		return s.root
	}
	return filepath.Join(cache.CodegenDir(), dirname(s.String()))
}

var dirnameReplacer = strings.NewReplacer(
	string(os.PathSeparator), "_",
	"\\", "_",
	"/", "_",
	".", "_",
	":", "_",
	"@", "_",
	"=", "_",
)

var dirnameStripper = strings.NewReplacer(
	"{", "",
	"}", "",
	" ", "",
	"\n", "",
	"\"", "",
	"'", "",
)

// dirname turns a display string into a single path segment.
func dirname(text string) string {
	return dirnameStripper.Replace(dirnameReplacer.Replace(text))
}
