// Package consent asks the user before rustup installs a toolchain or its
// components.
package consent

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-logr/logr"

	"cargogpu/internal/toolchain"
	"cargogpu/internal/tui"
)

var (
	ErrNoTTY      = errors.New("no TTY detected, so can't ask for consent to install Rust toolchain")
	ErrUserDenied = errors.New("user denied to install the required toolchain")
)

// PromptFunc asks message as a yes/no question.
type PromptFunc func(in io.Reader, out io.Writer, message string) (bool, error)

// Options configures the consent gate.
type Options struct {
	// Skip approves every installation without asking.
	Skip   bool
	In     io.Reader
	Out    io.Writer
	Logger logr.Logger

	// Prompt and IsTerminal default to the interactive terminal prompt.
	Prompt     PromptFunc
	IsTerminal func(io.Writer) bool
}

// Gate returns the Halt callbacks that ask for consent.
func Gate(opts Options) toolchain.Halt {
	if opts.Prompt == nil {
		opts.Prompt = tui.Confirm
	}
	if opts.IsTerminal == nil {
		opts.IsTerminal = tui.IsTerminal
	}
	return toolchain.Halt{
		OnToolchainInstall: func(channel string) error {
			return opts.ask(fmt.Sprintf("Rust %s with `rustup`", channel))
		},
		OnComponentsInstall: func(channel string) error {
			return opts.ask(fmt.Sprintf("components [%s] for toolchain %s with `rustup`",
				strings.Join(toolchain.RequiredComponents, " "), channel))
		},
	}
}

func (o Options) ask(subject string) error {
	if !o.Skip {
		if !o.IsTerminal(o.Out) {
			o.Logger.Info("attempted to ask for consent when there's no TTY")
			return ErrNoTTY
		}
		o.Logger.V(1).Info("asking for consent", "install", subject)
		approved, err := o.Prompt(o.In, o.Out, "Install "+subject)
		if err != nil {
			return fmt.Errorf("read consent: %w", err)
		}
		if !approved {
			o.Logger.Info("user did not consent", "install", subject)
			return ErrUserDenied
		}
	}
	tui.Printf(o.Out, "Installing %s", subject)
	return nil
}
