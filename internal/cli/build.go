package cli

import (
	"github.com/spf13/cobra"

	"cargogpu/internal/config"
	"cargogpu/internal/gpubuild"
	"cargogpu/internal/spirvbuild"
)

func newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Compile a shader crate to SPIR-V",
		Args:  cobra.NoArgs,
		RunE:  runBuild,
	}
	config.RegisterBuildFlags(cmd.Flags())
	return cmd
}

func runBuild(cmd *cobra.Command, _ []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	cfg, err := s.resolveConfig(cmd)
	if err != nil {
		return s.fail(err)
	}

	err = gpubuild.Run(s.ctx, cfg, gpubuild.Deps{
		Installer: s.installer(cmd, cfg),
		Halt:      s.halt(cmd, cfg),
		Versions:  s.toolchains(cmd),
		Builder:   spirvbuild.Builder{Runner: runner, Metadata: s.metadata(), Logger: s.logger},
		Logger:    s.logger,
		Out:       cmd.OutOrStdout(),
		Stdout:    cmd.OutOrStdout(),
		Stderr:    cmd.ErrOrStderr(),
	})
	return s.fail(err)
}
