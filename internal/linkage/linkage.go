// Package linkage describes compiled shader entry points for the host
// application and writes them as a JSON manifest.
package linkage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Linkage ties an entry point to the SPIR-V module that contains it.
type Linkage struct {
	// SourcePath uses forward slashes on every platform.
	SourcePath     string `json:"source_path"`
	EntryPoint     string `json:"entry_point"`
	WGSLEntryPoint string `json:"wgsl_entry_point"`
}

// New builds the linkage for entry found in the module at path.
func New(entry, path string) Linkage {
	return Linkage{
		SourcePath:     filepath.ToSlash(filepath.Clean(path)),
		EntryPoint:     entry,
		WGSLEntryPoint: strings.ReplaceAll(entry, "::", ""),
	}
}

// FnName is the entry point without its module path.
func (l Linkage) FnName() string {
	i := strings.LastIndex(l.EntryPoint, "::")
	if i < 0 {
		return l.EntryPoint
	}
	return l.EntryPoint[i+2:]
}

// Less orders by source path, then entry point, then WGSL name.
func (l Linkage) Less(o Linkage) bool {
	if l.SourcePath != o.SourcePath {
		return l.SourcePath < o.SourcePath
	}
	if l.EntryPoint != o.EntryPoint {
		return l.EntryPoint < o.EntryPoint
	}
	return l.WGSLEntryPoint < o.WGSLEntryPoint
}

// Sort orders linkages so the manifest is deterministic.
func Sort(ls []Linkage) {
	sort.Slice(ls, func(i, j int) bool { return ls[i].Less(ls[j]) })
}

// WriteManifest writes ls to path as indented JSON.
func WriteManifest(path string, ls []Linkage) error {
	if ls == nil {
		ls = []Linkage{}
	}
	data, err := json.MarshalIndent(ls, "", "  ")
	if err != nil {
		return fmt.Errorf("encode shader manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("could not write shader manifest file '%s': %w", path, err)
	}
	return nil
}
