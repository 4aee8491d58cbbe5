package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"cargogpu/internal/backend"
	"cargogpu/internal/tui"
)

var cleanAll bool

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or prune cached rustc_codegen_spirv builds",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List cached backends",
		Args:  cobra.NoArgs,
		RunE:  runCacheList,
	}
	list.Flags().BoolVar(&outputJSON, "json", false, "Output machine-readable JSON")
	cmd.AddCommand(list)

	clean := &cobra.Command{
		Use:   "clean [name...]",
		Short: "Remove cached backends by name, or all of them with --all",
		RunE:  runCacheClean,
	}
	clean.Flags().BoolVar(&cleanAll, "all", false, "Remove every cached backend")
	cmd.AddCommand(clean)

	return cmd
}

func runCacheList(cmd *cobra.Command, _ []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	cached, err := backend.ListCached(s.cache)
	if err != nil {
		return s.fail(err)
	}

	out := cmd.OutOrStdout()
	mode := tui.DetectMode(out, outputJSON)
	if mode == tui.ModeJSON {
		if cached == nil {
			cached = []backend.Cached{}
		}
		data, err := json.MarshalIndent(cached, "", "  ")
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}
	printCacheTable(out, cached, mode == tui.ModeTUI)
	return nil
}

func printCacheTable(out io.Writer, cached []backend.Cached, styled bool) {
	if len(cached) == 0 {
		fmt.Fprintln(out, "(no cached backends)")
		return
	}

	header := "NAME\tSTATUS\tSIZE\tDIR"
	if styled {
		header = tui.HeaderStyle.Render(header)
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, header)
	for _, c := range cached {
		status := "incomplete"
		if c.Installed() {
			status = "installed"
		}
		if styled {
			status = tui.StatusStyle(status).Render(status)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.Name, status, humanSize(c.Size), c.Dir)
	}
	w.Flush()
}

func runCacheClean(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if cleanAll == (len(args) > 0) {
		return errors.New("pass either backend names or --all")
	}

	names := args
	if cleanAll {
		cached, err := backend.ListCached(s.cache)
		if err != nil {
			return s.fail(err)
		}
		for _, c := range cached {
			names = append(names, c.Name)
		}
	}

	out := cmd.OutOrStdout()
	if tui.DetectMode(out, false) == tui.ModeTUI && len(names) > 0 {
		model := tui.NewTaskModel("Removing cached backends", names)
		return s.fail(tui.RunTasks(cmd.InOrStdin(), out, model, func(update func(string, string)) error {
			return s.removeCached(names, update)
		}))
	}
	return s.fail(s.removeCached(names, func(name, status string) {
		if status == "removed" {
			tui.Printf(out, "Removed %s", name)
		}
	}))
}

// removeCached stops at the first failure.
func (s *session) removeCached(names []string, update func(name, status string)) error {
	for _, name := range names {
		if err := backend.RemoveCached(s.ctx, s.cache, name); err != nil {
			update(name, "error")
			return err
		}
		update(name, "removed")
	}
	return nil
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
