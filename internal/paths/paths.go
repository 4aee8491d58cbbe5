package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	cacheDirEnv   = "CARGO_GPU_CACHE_DIR"
	configFileEnv = "CARGO_GPU_CONFIG"
)

// Cache captures canonical locations below the cache root. It is passed
// explicitly to every component that reads or writes cached artifacts.
type Cache struct {
	Root string
}

// DefaultCacheRoot determines the per-user cache root. CARGO_GPU_CACHE_DIR
// overrides the platform default of <user cache dir>/rust-gpu.
func DefaultCacheRoot() (string, error) {
	if override, ok := os.LookupEnv(cacheDirEnv); ok && override != "" {
		abs, err := filepath.Abs(override)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", cacheDirEnv, err)
		}
		return abs, nil
	}

	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("could not find cache directory: %w", err)
	}
	return filepath.Join(base, "rust-gpu"), nil
}

// NewCache resolves root to an absolute path. An empty root selects
// DefaultCacheRoot.
func NewCache(root string) (Cache, error) {
	if root == "" {
		def, err := DefaultCacheRoot()
		if err != nil {
			return Cache{}, err
		}
		return Cache{Root: def}, nil
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return Cache{}, fmt.Errorf("resolve cache root: %w", err)
	}
	return Cache{Root: abs}, nil
}

// CodegenDir holds one install directory per backend source.
func (c Cache) CodegenDir() string {
	return filepath.Join(c.Root, "codegen")
}

// LegacyTargetSpecsDir is shared by every local checkout that lacks its own
// target specs.
func (c Cache) LegacyTargetSpecsDir() string {
	return filepath.Join(c.Root, "legacy-target-specs-for-local-checkout")
}

func (c Cache) LocksDir() string {
	return filepath.Join(c.Root, "locks")
}

func (c Cache) LogsDir() string {
	return filepath.Join(c.Root, "logs")
}

// Ensure makes sure the cache root exists on disk.
func (c Cache) Ensure() error {
	if err := os.MkdirAll(c.Root, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory %s: %w", c.Root, err)
	}
	return nil
}

// UserConfigFile returns the location of the optional user-level config file.
// CARGO_GPU_CONFIG overrides <user config dir>/cargo-gpu/config.yaml.
func UserConfigFile() (string, error) {
	if override, ok := os.LookupEnv(configFileEnv); ok && override != "" {
		return filepath.Abs(override)
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("detect user config dir: %w", err)
	}
	return filepath.Join(base, "cargo-gpu", "config.yaml"), nil
}

// FileExists reports whether a path exists and is a regular file.
func FileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// DirExists reports whether a path exists and is a directory.
func DirExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

// IsFile is FileExists with errors treated as absence.
func IsFile(path string) bool {
	ok, err := FileExists(path)
	return err == nil && ok
}

// IsDir is DirExists with errors treated as absence.
func IsDir(path string) bool {
	ok, err := DirExists(path)
	return err == nil && ok
}
