// Package metadata queries and searches the resolved package graph reported
// by `cargo metadata`.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/go-logr/logr"

	"cargogpu/internal/command"
)

// Metadata is the subset of `cargo metadata --format-version 1` output this
// tool reads.
type Metadata struct {
	Packages          []Package       `json:"packages"`
	WorkspaceMembers  []string        `json:"workspace_members"`
	WorkspaceRoot     string          `json:"workspace_root"`
	TargetDirectory   string          `json:"target_directory"`
	WorkspaceMetadata json.RawMessage `json:"metadata,omitempty"`
}

// Package is one node of the resolved package graph.
type Package struct {
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	ID           string          `json:"id"`
	Source       *string         `json:"source"`
	ManifestPath string          `json:"manifest_path"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
}

// SourceString returns the package source or "" for path dependencies.
func (p Package) SourceString() string {
	if p.Source == nil {
		return ""
	}
	return *p.Source
}

// ManifestDir is the directory containing the package's Cargo.toml.
func (p Package) ManifestDir() string {
	return filepath.Dir(p.ManifestPath)
}

// Querier resolves the package graph of the crate in dir.
type Querier interface {
	Query(ctx context.Context, dir string) (*Metadata, error)
}

// Cargo runs `cargo metadata` through a command.Runner.
type Cargo struct {
	Runner command.Runner
	Logger logr.Logger
}

var _ Querier = Cargo{}

func (c Cargo) Query(ctx context.Context, dir string) (*Metadata, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get an absolute path to the crate: %w", err)
	}

	c.Logger.V(1).Info("querying cargo metadata", "dir", abs)
	res, err := command.Exec(ctx, c.Runner, "cargo", []string{"metadata", "--format-version", "1"}, command.RunOptions{Dir: abs})
	if err != nil {
		return nil, err
	}
	return Parse(res.Stdout)
}

// Parse decodes `cargo metadata` JSON output.
func Parse(data []byte) (*Metadata, error) {
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("unmarshal cargo metadata: %w", err)
	}
	return &meta, nil
}

// FindPackage returns the first package named name.
func (m *Metadata) FindPackage(name string) (*Package, error) {
	for i := range m.Packages {
		if m.Packages[i].Name == name {
			return &m.Packages[i], nil
		}
	}
	return nil, &PackageNotFoundError{Name: name, WorkspaceRoot: m.WorkspaceRoot}
}

// HasPackage reports whether a package named name is part of the graph.
func (m *Metadata) HasPackage(name string) bool {
	_, err := m.FindPackage(name)
	return err == nil
}

// PackageByManifestPath returns the package whose Cargo.toml is manifest.
// Both sides are compared after resolving symlinks so that relative or
// aliased paths still match.
func (m *Metadata) PackageByManifestPath(manifest string) (*Package, error) {
	want, err := canonical(manifest)
	if err != nil {
		return nil, fmt.Errorf("package manifest path was not valid: %w", err)
	}
	for i := range m.Packages {
		got, err := canonical(m.Packages[i].ManifestPath)
		if err != nil {
			continue
		}
		if got == want {
			return &m.Packages[i], nil
		}
	}
	return nil, &ManifestNotFoundError{Path: manifest, WorkspaceRoot: m.WorkspaceRoot}
}

func canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	return resolved, nil
}

// PackageNotFoundError is returned when a package is absent from the graph.
type PackageNotFoundError struct {
	Name          string
	WorkspaceRoot string
}

func (e *PackageNotFoundError) Error() string {
	return fmt.Sprintf("`%s` not found in `Cargo.toml` at '%s'", e.Name, e.WorkspaceRoot)
}

// ManifestNotFoundError is returned when no package owns a manifest path.
type ManifestNotFoundError struct {
	Path          string
	WorkspaceRoot string
}

func (e *ManifestNotFoundError) Error() string {
	return fmt.Sprintf("no package with manifest path '%s' found at '%s'", e.Path, e.WorkspaceRoot)
}
