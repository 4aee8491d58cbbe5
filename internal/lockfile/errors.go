package lockfile

import (
	"errors"
	"fmt"
)

// ErrConflictingVersions is returned when a v4 lockfile would be read by a
// toolchain that only understands v3 and overwriting was not allowed.
var ErrConflictingVersions = errors.New(`conflicting ` + "`Cargo.lock`" + ` versions detected ⚠️

Because a dedicated Rust toolchain for compiling shaders is being used,
it's possible that the ` + "`Cargo.lock`" + ` manifest version of the shader crate
does not match the ` + "`Cargo.lock`" + ` manifest version of the workspace.
This is due to a change in the defaults introduced in Rust 1.83.0.

One way to resolve this is to force the workspace to use the same version
of Rust as required by the shader. However, that is not often ideal or even
possible. Another way is to exclude the shader from the workspace. This is
also not ideal if you have many shaders sharing config from the workspace.

Therefore, ` + "`cargo gpu build/install`" + ` offers a workaround with the argument:
  --force-overwrite-lockfiles-v4-to-v3

See ` + "`cargo gpu build --help`" + ` for more information.`)

// QueryRustcError wraps a failed rustc version query.
type QueryRustcError struct {
	Channel string
	Err     error
}

func (e *QueryRustcError) Error() string {
	return fmt.Sprintf("could not query rustc version: %v", e.Err)
}

func (e *QueryRustcError) Unwrap() error { return e.Err }

// ReadFileError reports a lockfile or manifest that could not be read.
type ReadFileError struct {
	File string
	Err  error
}

func (e *ReadFileError) Error() string {
	return fmt.Sprintf("could not read file %s: %v", e.File, e.Err)
}

func (e *ReadFileError) Unwrap() error { return e.Err }

// RewriteError reports a failed manifest version rewrite.
type RewriteError struct {
	File string
	From string
	To   string
	Err  error
}

func (e *RewriteError) Error() string {
	return fmt.Sprintf("could not rewrite lockfile %s from version %s to %s: %v", e.File, e.From, e.To, e.Err)
}

func (e *RewriteError) Unwrap() error { return e.Err }

// TooFewLinesError is returned for lockfiles without a version line.
type TooFewLinesError struct {
	File string
}

func (e *TooFewLinesError) Error() string {
	return fmt.Sprintf("lockfile at %s has too few lines to determine manifest version", e.File)
}

// UnrecognizedVersionError is returned when the version line is neither v3
// nor v4.
type UnrecognizedVersionError struct {
	File        string
	VersionLine string
}

func (e *UnrecognizedVersionError) Error() string {
	return fmt.Sprintf("unrecognized lockfile %s manifest version at %q", e.File, e.VersionLine)
}
