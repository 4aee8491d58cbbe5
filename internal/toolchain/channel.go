package toolchain

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cargogpu/internal/metadata"
)

// BackendPackage is the crate whose build script pins the toolchain.
const BackendPackage = "rustc_codegen_spirv"

const (
	channelStart = `channel = "`
	channelEnd   = `"`
)

// ErrManifestAtRoot is returned when the backend manifest has no parent
// directory to look for a build script in.
var ErrManifestAtRoot = errors.New("package manifest was located at root")

// BuildScriptErrorKind names the step of channel discovery that failed.
type BuildScriptErrorKind int

const (
	InvalidBuildScript BuildScriptErrorKind = iota
	ChannelStartNotFound
	ChannelEndNotFound
	InvalidChannelSlice
)

// BuildScriptError reports a build script that does not declare a usable
// toolchain channel.
type BuildScriptError struct {
	Kind        BuildScriptErrorKind
	BuildScript string
	Line        string
	Err         error
}

func (e *BuildScriptError) Error() string {
	switch e.Kind {
	case ChannelStartNotFound:
		return fmt.Sprintf("`%s` line in %q not found", channelStart, e.BuildScript)
	case ChannelEndNotFound:
		return fmt.Sprintf("ending `%s` of line %q in %q not found", channelEnd, e.Line, e.BuildScript)
	case InvalidChannelSlice:
		return fmt.Sprintf("cannot slice line %q of %q", e.Line, e.BuildScript)
	default:
		return fmt.Sprintf("invalid build script %s: %v", e.BuildScript, e.Err)
	}
}

func (e *BuildScriptError) Unwrap() error {
	return e.Err
}

// Channel reads the toolchain channel the backend declares in its build.rs,
// e.g. "nightly-2024-04-24".
func Channel(pkg metadata.Package) (string, error) {
	if pkg.ManifestPath == "" || pkg.ManifestDir() == pkg.ManifestPath {
		return "", ErrManifestAtRoot
	}
	buildScript := filepath.Join(pkg.ManifestDir(), "build.rs")

	contents, err := os.ReadFile(buildScript)
	if err != nil {
		return "", &BuildScriptError{Kind: InvalidBuildScript, BuildScript: buildScript, Err: err}
	}
	return ParseChannel(buildScript, string(contents))
}

// ParseChannel extracts the channel from build script text. buildScript is
// only used for error messages.
func ParseChannel(buildScript, contents string) (string, error) {
	var line string
	found := false
	for _, l := range strings.Split(contents, "\n") {
		l = strings.TrimSuffix(l, "\r")
		if strings.HasPrefix(l, channelStart) {
			line, found = l, true
			break
		}
	}
	if !found {
		return "", &BuildScriptError{Kind: ChannelStartNotFound, BuildScript: buildScript}
	}

	start := len(channelStart)
	end := strings.Index(line[start:], channelEnd)
	if end < 0 {
		return "", &BuildScriptError{Kind: ChannelEndNotFound, BuildScript: buildScript, Line: line}
	}
	end += start
	if end < start || end > len(line) {
		return "", &BuildScriptError{Kind: InvalidChannelSlice, BuildScript: buildScript, Line: line}
	}
	return line[start:end], nil
}
