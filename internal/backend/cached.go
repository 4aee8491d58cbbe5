package backend

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"cargogpu/internal/paths"
)

// Cached describes one install directory below the codegen cache.
type Cached struct {
	Name string `json:"name"`
	Dir  string `json:"dir"`
	// Dylib is empty while the backend has not been built.
	Dylib string `json:"dylib,omitempty"`
	Size  int64  `json:"size"`
}

// Installed reports whether the backend library is present.
func (c Cached) Installed() bool { return c.Dylib != "" }

// ErrNotCached means no install directory has the requested name.
var ErrNotCached = errors.New("no cached backend with that name")

// ListCached returns every cached install, sorted by name. A missing cache
// yields an empty list.
func ListCached(cache paths.Cache) ([]Cached, error) {
	entries, err := os.ReadDir(cache.CodegenDir())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read codegen cache: %w", err)
	}

	var out []Cached
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(cache.CodegenDir(), entry.Name())
		c := Cached{Name: entry.Name(), Dir: dir, Size: dirSize(dir)}
		if dylib := filepath.Join(dir, hostDylibName()); paths.IsFile(dylib) {
			c.Dylib = dylib
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// RemoveCached deletes the named install directory while holding its
// install lock.
func RemoveCached(ctx context.Context, cache paths.Cache, name string) error {
	if name == "" || filepath.Base(name) != name || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrNotCached, name)
	}
	dir := filepath.Join(cache.CodegenDir(), name)
	if !paths.IsDir(dir) {
		return fmt.Errorf("%w: %q", ErrNotCached, name)
	}

	unlock, err := lockInstallDir(ctx, cache, dir)
	if err != nil {
		return err
	}
	defer unlock()

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove cached backend %s: %w", name, err)
	}
	return nil
}

func dirSize(dir string) int64 {
	var size int64
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if info, err := d.Info(); err == nil && info.Mode().IsRegular() {
			size += info.Size()
		}
		return nil
	})
	return size
}
