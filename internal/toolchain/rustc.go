package toolchain

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/mod/semver"

	"cargogpu/internal/command"
)

// RustcVersion queries `rustc --version`, or `rustc +channel --version` when
// channel is set, and returns the release as a canonical semver string such as
// "v1.76.0". Pre-release labels like "-nightly" are dropped.
func (i Installer) RustcVersion(ctx context.Context, channel string) (string, error) {
	args := []string{"--version"}
	if channel != "" {
		args = append([]string{"+" + channel}, args...)
	}
	res, err := command.Exec(ctx, i.Runner, "rustc", args, command.RunOptions{})
	if err != nil {
		return "", err
	}
	return ParseRustcVersion(string(res.Stdout))
}

// ParseRustcVersion parses output like "rustc 1.76.0-nightly (f704f3b93 2024-01-01)".
func ParseRustcVersion(output string) (string, error) {
	fields := strings.Fields(output)
	if len(fields) < 2 || fields[0] != "rustc" {
		return "", fmt.Errorf("unexpected rustc version output %q", strings.TrimSpace(output))
	}
	v := "v" + fields[1]
	if !semver.IsValid(v) {
		return "", fmt.Errorf("unexpected rustc version %q", fields[1])
	}
	canonical := semver.Canonical(v)
	if pre := semver.Prerelease(canonical); pre != "" {
		canonical = strings.TrimSuffix(canonical, pre)
	}
	return canonical, nil
}
