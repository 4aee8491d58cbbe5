package cli

import (
	"github.com/spf13/cobra"

	"cargogpu/internal/backend"
	"cargogpu/internal/config"
	"cargogpu/internal/consent"
	"cargogpu/internal/toolchain"
	"cargogpu/internal/tui"
)

func newInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install rust-gpu compiler artifacts",
		Args:  cobra.NoArgs,
		RunE:  runInstall,
	}
	config.RegisterInstallFlags(cmd.Flags())
	return cmd
}

func runInstall(cmd *cobra.Command, _ []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	cfg, err := s.resolveConfig(cmd)
	if err != nil {
		return s.fail(err)
	}

	be, err := s.installer(cmd, cfg).Install(s.ctx, cfg.Install.ShaderCrate, s.halt(cmd, cfg))
	if err != nil {
		return s.fail(err)
	}
	tui.Printf(cmd.OutOrStdout(), "`rustc_codegen_spirv` for %s is at %s", be.Channel, be.DylibPath)
	return nil
}

func (s *session) installer(cmd *cobra.Command, cfg config.Config) backend.Installer {
	return backend.Installer{
		Source:         cfg.Install.SpirvBuilderSource,
		Version:        cfg.Install.SpirvBuilderVersion,
		RebuildCodegen: cfg.Install.RebuildCodegen,
		ClearTarget:    cfg.Install.ClearTarget,
		Cache:          s.cache,
		Runner:         runner,
		Metadata:       s.metadata(),
		Logger:         s.logger,
		Out:            cmd.OutOrStdout(),
		Stdout:         cmd.OutOrStdout(),
		Stderr:         cmd.ErrOrStderr(),
	}
}

func (s *session) halt(cmd *cobra.Command, cfg config.Config) toolchain.Halt {
	return consent.Gate(consent.Options{
		Skip:   cfg.Install.AutoInstallRustToolchain,
		In:     cmd.InOrStdin(),
		Out:    cmd.OutOrStdout(),
		Logger: s.logger,
	})
}

func (s *session) toolchains(cmd *cobra.Command) toolchain.Installer {
	return toolchain.Installer{
		Runner: runner,
		Logger: s.logger,
		Stdout: cmd.OutOrStdout(),
		Stderr: cmd.ErrOrStderr(),
	}
}
