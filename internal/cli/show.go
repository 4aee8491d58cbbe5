package cli

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"

	"cargogpu/internal/config"
	"cargogpu/internal/linkage"
	"cargogpu/internal/source"
	"cargogpu/internal/targetspecs"
)

// Output of show is meant for scripts, so it carries no crab prefix.
func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show some useful values",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "cache-directory",
		Short: "Display the location of the cache directory",
		Args:  cobra.NoArgs,
		RunE:  runShowCacheDirectory,
	})

	spirvSource := &cobra.Command{
		Use:   "spirv-source",
		Short: "Display the source location of spirv-std",
		Args:  cobra.NoArgs,
		RunE:  runShowSpirvSource,
	}
	config.RegisterShaderCrateFlag(spirvSource.Flags())
	cmd.AddCommand(spirvSource)

	cmd.AddCommand(&cobra.Command{
		Use:   "commitsh",
		Short: "Display the git commit this tool was built from",
		Args:  cobra.NoArgs,
		RunE:  runShowCommitsh,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "capabilities",
		Short: "List the SPIR-V capabilities accepted by --capabilities",
		Args:  cobra.NoArgs,
		RunE:  runShowCapabilities,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "targets",
		Short: "List the bundled SPIR-V targets",
		Args:  cobra.NoArgs,
		RunE:  runShowTargets,
	})
	return cmd
}

func runShowCacheDirectory(cmd *cobra.Command, _ []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Fprintln(cmd.OutOrStdout(), s.cache.Root)
	return nil
}

func runShowSpirvSource(cmd *cobra.Command, _ []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	crate, err := cmd.Flags().GetString(config.FlagShaderCrate)
	if err != nil {
		return err
	}
	src, err := source.FromShaderCrate(s.ctx, s.metadata(), crate)
	if err != nil {
		return s.fail(err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), src.String())
	return nil
}

func runShowCommitsh(cmd *cobra.Command, _ []string) error {
	fmt.Fprintln(cmd.OutOrStdout(), commitsh())
	return nil
}

// commitsh reads the VCS revision stamped into the binary by the go tool.
func commitsh() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	var revision, modified string
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			modified = setting.Value
		}
	}
	if revision == "" {
		return "unknown"
	}
	if modified == "true" {
		return revision + "-dirty"
	}
	return revision
}

func runShowCapabilities(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "All available options to the `cargo gpu build --capabilities` argument:")
	for _, name := range linkage.CapabilityNames() {
		fmt.Fprintf(out, "  %s\n", name)
	}
	return nil
}

func runShowTargets(cmd *cobra.Command, _ []string) error {
	for _, target := range targetspecs.Targets() {
		fmt.Fprintln(cmd.OutOrStdout(), target)
	}
	return nil
}
