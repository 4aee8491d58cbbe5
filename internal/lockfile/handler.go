// Package lockfile downgrades Cargo.lock manifest versions around a shader
// build when the shader toolchain predates lockfile v4.
//
// Rust 1.83.0 made v4 the default. Older shader toolchains refuse to read a
// v4 lockfile, so with the user's consent the version line is rewritten to 3
// for the duration of the build and restored afterwards.
package lockfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"
	"golang.org/x/mod/semver"
)

// V4Threshold is the first rustc release that writes v4 lockfiles.
const V4Threshold = "v1.83.0"

// maxWorkspaceDepth bounds the upward search for a workspace Cargo.lock.
const maxWorkspaceDepth = 15

const fileName = "Cargo.lock"

// RustcVersioner reports the canonical rustc release for a toolchain
// channel. An empty channel means the active toolchain.
type RustcVersioner interface {
	RustcVersion(ctx context.Context, channel string) (string, error)
}

// Options configures a Handler.
type Options struct {
	ShaderCrate    string
	Channel        string
	ForceOverwrite bool
	Versions       RustcVersioner
	Logger         logr.Logger
}

// Handler holds the lockfiles rewritten from v4 to v3. Call Finish after a
// successful build or Abort on failure; Close reverts if neither happened.
type Handler struct {
	changed []string
	logger  logr.Logger
	done    bool
}

// New checks both directions of the v3/v4 conflict and rewrites lockfiles
// when opts.ForceOverwrite allows it.
func New(ctx context.Context, opts Options) (*Handler, error) {
	h := &Handler{logger: opts.Logger}

	if path, err := h.checkWorkspaceToolchain(ctx, opts); err != nil {
		h.Abort()
		return nil, err
	} else if path != "" {
		h.changed = append(h.changed, path)
	}

	if path, err := h.checkShaderToolchain(ctx, opts); err != nil {
		h.Abort()
		return nil, err
	} else if path != "" {
		h.changed = append(h.changed, path)
	}
	return h, nil
}

// Changed lists the lockfiles awaiting reversion.
func (h *Handler) Changed() []string {
	return append([]string(nil), h.changed...)
}

// checkWorkspaceToolchain guards the shader crate's lockfile against an
// active toolchain that cannot read v4.
func (h *Handler) checkWorkspaceToolchain(ctx context.Context, opts Options) (string, error) {
	h.logger.V(1).Info("ensuring no v3/v4 Cargo.lock conflicts from workspace Rust")
	version, err := opts.Versions.RustcVersion(ctx, "")
	if err != nil {
		return "", &QueryRustcError{Err: err}
	}
	if semver.Compare(version, V4Threshold) >= 0 {
		h.logger.V(1).Info("no v3/v4 conflicts possible", "rustc", version)
		return "", nil
	}

	lock := filepath.Join(opts.ShaderCrate, fileName)
	if !exists(lock) {
		return "", nil
	}
	if err := h.handle(lock, opts.ForceOverwrite); err != nil {
		return "", err
	}
	if opts.ForceOverwrite {
		return lock, nil
	}
	return "", nil
}

// checkShaderToolchain guards the shader's and the workspace's lockfiles
// against a shader toolchain that cannot read v4.
func (h *Handler) checkShaderToolchain(ctx context.Context, opts Options) (string, error) {
	h.logger.V(1).Info("ensuring no v3/v4 Cargo.lock conflicts from shader Rust")
	version, err := opts.Versions.RustcVersion(ctx, opts.Channel)
	if err != nil {
		return "", &QueryRustcError{Channel: opts.Channel, Err: err}
	}
	if semver.Compare(version, V4Threshold) >= 0 {
		h.logger.V(1).Info("no v3/v4 conflicts possible", "rustc", version, "channel", opts.Channel)
		return "", nil
	}
	h.logger.V(1).Info("checking shader and workspace lockfiles", "rustc", version)

	// The shader's own lockfile is fixed for good, so it is not reverted.
	shaderLock := filepath.Join(opts.ShaderCrate, fileName)
	if exists(shaderLock) {
		if err := h.handle(shaderLock, opts.ForceOverwrite); err != nil {
			return "", err
		}
	}

	root, err := WorkspaceRoot(opts.ShaderCrate)
	if err != nil || root == "" {
		return "", err
	}
	lock := filepath.Join(root, fileName)
	if err := h.handle(lock, opts.ForceOverwrite); err != nil {
		return "", err
	}
	return lock, nil
}

// WorkspaceRoot finds the nearest ancestor of a workspace member that holds
// a Cargo.lock. cargo metadata cannot be used here because it fails on the
// very conflict being handled. It returns "" for crates that do not inherit
// from a workspace.
func WorkspaceRoot(shaderCrate string) (string, error) {
	manifest := filepath.Join(shaderCrate, "Cargo.toml")
	contents, err := os.ReadFile(manifest)
	if err != nil {
		return "", &ReadFileError{File: manifest, Err: err}
	}
	if !strings.Contains(string(contents), "workspace = true") {
		return "", nil
	}

	current := filepath.Clean(shaderCrate)
	for range maxWorkspaceDepth {
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		if exists(filepath.Join(parent, fileName)) {
			return parent, nil
		}
		current = parent
	}
	return "", nil
}

// handle inspects the version line of lock.
func (h *Handler) handle(lock string, force bool) error {
	contents, err := os.ReadFile(lock)
	if err != nil {
		return &ReadFileError{File: lock, Err: err}
	}
	line, ok := versionLine(string(contents))
	if !ok {
		return &TooFewLinesError{File: lock}
	}
	switch {
	case strings.Contains(line, "version = 4"):
		if !force {
			return ErrConflictingVersions
		}
		return h.replaceVersion(lock, "4", "3")
	case strings.Contains(line, "version = 3"):
		return nil
	default:
		return &UnrecognizedVersionError{File: lock, VersionLine: line}
	}
}

// versionLine returns the third line, where cargo writes the manifest
// version.
func versionLine(contents string) (string, bool) {
	lines := strings.SplitN(contents, "\n", 4)
	if len(lines) < 3 {
		return "", false
	}
	// A trailing newline after the second line does not make a third line.
	if len(lines) == 3 && lines[2] == "" {
		return "", false
	}
	return strings.TrimSuffix(lines[2], "\r"), true
}

func (h *Handler) replaceVersion(lock, from, to string) error {
	h.logger.Info("replacing lockfile manifest version", "file", lock, "from", from, "to", to)
	contents, err := os.ReadFile(lock)
	if err != nil {
		return &ReadFileError{File: lock, Err: err}
	}
	updated := strings.ReplaceAll(string(contents), "\nversion = "+from+"\n", "\nversion = "+to+"\n")
	if err := os.WriteFile(lock, []byte(updated), 0o644); err != nil {
		return &RewriteError{File: lock, From: from, To: to, Err: err}
	}
	return nil
}

// revert puts every recorded lockfile back to v4. A failure on one file does
// not stop the others.
func (h *Handler) revert() error {
	var errs []error
	for _, lock := range h.changed {
		h.logger.V(1).Info("reverting lockfile", "file", lock)
		if err := h.replaceVersion(lock, "3", "4"); err != nil {
			h.logger.Error(err, "could not revert lockfile", "file", lock)
			errs = append(errs, err)
		}
	}
	h.changed = nil
	return errors.Join(errs...)
}

// Finish restores the rewritten lockfiles and reports any failures.
func (h *Handler) Finish() error {
	if h.done {
		return nil
	}
	h.done = true
	return h.revert()
}

// Abort restores the rewritten lockfiles, logging failures.
func (h *Handler) Abort() {
	if h.done {
		return
	}
	h.done = true
	_ = h.revert()
}

// Close is the fallback for callers that neither finished nor aborted.
func (h *Handler) Close() error {
	if h.done {
		return nil
	}
	h.logger.Info("lockfile handler closed without finishing, reverting")
	h.Abort()
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
