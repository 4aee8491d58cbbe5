// Package toolchain discovers the Rust toolchain a backend needs and makes
// sure rustup has it installed together with the required components.
package toolchain

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/go-logr/logr"

	"cargogpu/internal/command"
)

// RequiredComponents must be installed on the backend toolchain.
var RequiredComponents = []string{"rust-src", "rustc-dev", "llvm-tools"}

// Halt lets the caller stop before anything is installed. A nil callback
// approves silently.
type Halt struct {
	OnToolchainInstall  func(channel string) error
	OnComponentsInstall func(channel string) error
}

// NoopHalt approves every installation.
func NoopHalt() Halt {
	return Halt{}
}

func (h Halt) beforeToolchain(channel string) error {
	if h.OnToolchainInstall == nil {
		return nil
	}
	return h.OnToolchainInstall(channel)
}

func (h Halt) beforeComponents(channel string) error {
	if h.OnComponentsInstall == nil {
		return nil
	}
	return h.OnComponentsInstall(channel)
}

// Installer drives rustup. Stdout and Stderr receive the output of the
// install commands so the user can follow download progress.
type Installer struct {
	Runner command.Runner
	Logger logr.Logger
	Stdout io.Writer
	Stderr io.Writer
}

// Ensure installs the channel and the required components if they are
// missing. Both checks are safe to repeat.
func (i Installer) Ensure(ctx context.Context, channel string, halt Halt) error {
	i.Logger.V(1).Info("ensuring toolchain and components exist", "channel", channel)

	installed, err := i.IsInstalled(ctx, channel)
	if err != nil {
		return err
	}
	if installed {
		i.Logger.Info("toolchain already installed", "channel", channel)
	} else {
		if err := halt.beforeToolchain(channel); err != nil {
			return err
		}
		if err := i.InstallToolchain(ctx, channel); err != nil {
			return err
		}
	}

	complete, err := i.ComponentsInstalled(ctx, channel)
	if err != nil {
		return err
	}
	if complete {
		i.Logger.Info("all required components are installed", "channel", channel)
		return nil
	}
	if err := halt.beforeComponents(channel); err != nil {
		return err
	}
	return i.InstallComponents(ctx, channel)
}

// IsInstalled reports whether `rustup toolchain list` mentions channel.
func (i Installer) IsInstalled(ctx context.Context, channel string) (bool, error) {
	res, err := command.Exec(ctx, i.Runner, "rustup", []string{"toolchain", "list"}, command.RunOptions{})
	if err != nil {
		return false, err
	}
	for _, field := range strings.Fields(string(res.Stdout)) {
		if strings.HasPrefix(field, channel) {
			return true, nil
		}
	}
	return false, nil
}

// InstallToolchain runs `rustup toolchain add`.
func (i Installer) InstallToolchain(ctx context.Context, channel string) error {
	i.Logger.Info("installing toolchain", "channel", channel)
	_, err := command.Exec(ctx, i.Runner, "rustup", []string{"toolchain", "add", channel}, i.inherit())
	return err
}

// ComponentsInstalled reports whether every required component is marked
// installed for channel.
func (i Installer) ComponentsInstalled(ctx context.Context, channel string) (bool, error) {
	res, err := command.Exec(ctx, i.Runner, "rustup", []string{"component", "list", "--toolchain", channel}, command.RunOptions{})
	if err != nil {
		return false, err
	}
	return AllRequiredComponentsInstalled(string(res.Stdout)), nil
}

// AllRequiredComponentsInstalled checks `rustup component list` output. A
// component counts only when its line ends in "(installed)".
func AllRequiredComponentsInstalled(componentList string) bool {
	lines := strings.Split(componentList, "\n")
	for _, component := range RequiredComponents {
		found := false
		for _, line := range lines {
			line = strings.TrimRight(line, "\r ")
			if strings.HasPrefix(line, component) && strings.HasSuffix(line, "(installed)") {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// InstallComponents adds all required components in one rustup call.
func (i Installer) InstallComponents(ctx context.Context, channel string) error {
	i.Logger.Info("installing required components", "channel", channel, "components", RequiredComponents)
	args := append([]string{"component", "add", "--toolchain", channel}, RequiredComponents...)
	_, err := command.Exec(ctx, i.Runner, "rustup", args, i.inherit())
	if err != nil {
		return fmt.Errorf("install components: %w", err)
	}
	return nil
}

func (i Installer) inherit() command.RunOptions {
	return command.RunOptions{Stdout: i.Stdout, Stderr: i.Stderr}
}
