package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"cargogpu/internal/config"
	"cargogpu/internal/linkage"
	"cargogpu/internal/paths"
	"cargogpu/internal/spirvbuild"
	"cargogpu/internal/targetspecs"
	"cargogpu/internal/tui"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the merged configuration",
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration in YAML",
		RunE:  runConfigShow,
	}
	config.RegisterShaderCrateFlag(cmd.Flags())
	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the location of the user config file",
		RunE:  runConfigPath,
	}
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	cfg, results, err := s.loadConfig(cmd)
	if err != nil {
		return s.fail(err)
	}

	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprint(out, string(data))
	if len(data) == 0 || data[len(data)-1] != '\n' {
		fmt.Fprintln(out)
	}
	printFindings(cmd.ErrOrStderr(), results)
	return nil
}

func runConfigPath(cmd *cobra.Command, _ []string) error {
	path, err := paths.UserConfigFile()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

// loadConfig merges every configuration layer for the command's flags and
// validates the result without failing on findings.
func (s *session) loadConfig(cmd *cobra.Command) (config.Config, []config.ValidationResult, error) {
	flags, err := config.FlagLayer(cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	userFile, err := paths.UserConfigFile()
	if err != nil {
		return config.Config{}, nil, err
	}

	cfg, err := config.Resolve(s.ctx, config.Sources{
		UserFile: userFile,
		Metadata: s.metadata(),
		Flags:    flags,
		Logger:   s.logger,
	})
	if err != nil {
		return config.Config{}, nil, err
	}
	s.logger.V(1).Info("merged configuration", "install", cfg.Install, "build", cfg.Build)
	return cfg, cfg.Validate(knownValues()), nil
}

// resolveConfig is loadConfig for commands that act on the config: errors
// abort, warnings are printed.
func (s *session) resolveConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, results, err := s.loadConfig(cmd)
	if err != nil {
		return config.Config{}, err
	}
	printFindings(cmd.ErrOrStderr(), results)

	var errs []error
	for _, r := range config.Errors(results) {
		errs = append(errs, errors.New(r.Message))
	}
	if len(errs) > 0 {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return cfg, nil
}

func knownValues() config.Known {
	return config.Known{
		Targets:       targetspecs.Targets(),
		Capabilities:  linkage.CapabilityNames(),
		SpirvMetadata: spirvbuild.SpirvMetadataValues(),
	}
}

func printFindings(w io.Writer, results []config.ValidationResult) {
	for _, r := range results {
		tui.Printf(w, "%s: %s", r.Level, r.Message)
	}
}
