package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/smallnest/crewgraph/export"
	"github.com/smallnest/crewgraph/store"
	"github.com/smallnest/crewgraph/transcript"
	"github.com/spf13/cobra"
)

func newSessionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session"},
		Short:   "Inspect and manage stored sessions",
	}
	cmd.AddCommand(
		newSessionsListCmd(a),
		newSessionsShowCmd(a),
		newSessionsClearCmd(a),
		newSessionsExportCmd(a),
	)
	return cmd
}

func newSessionsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions with their message counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			stats, err := st.AllStats(cmd.Context())
			if err != nil {
				return err
			}
			displaySessions(cmd.OutOrStdout(), stats)
			return nil
		},
	}
}

func displaySessions(out io.Writer, stats map[string]store.SessionStats) {
	if len(stats) == 0 {
		fmt.Fprintln(out, headerStyle.Render("No sessions found"))
		return
	}
	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("Found %d session(s)", len(stats))))
	fmt.Fprintln(out)

	ids := make([]string, 0, len(stats))
	for id := range stats {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := stats[ids[i]], stats[ids[j]]
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return ids[i] < ids[j]
	})

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, titleStyle.Render("ID")+"\t"+titleStyle.Render("Messages")+"\t"+titleStyle.Render("Created")+"\t"+titleStyle.Render("Updated"))
	for _, id := range ids {
		s := stats[id]
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			idStyle.Render(id),
			countStyle.Render(strconv.Itoa(s.MessageCount)),
			dateStyle.Render(formatDate(s.CreatedAt)),
			dateStyle.Render(formatDate(s.UpdatedAt)),
		)
	}
	_ = w.Flush()
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	t = t.Local()
	diff := time.Since(t)
	switch {
	case diff < 24*time.Hour:
		return t.Format("Today 15:04")
	case diff < 7*24*time.Hour:
		return t.Format("Mon 15:04")
	case diff < 365*24*time.Hour:
		return t.Format("Jan 02 15:04")
	}
	return t.Format("2006-01-02")
}

func newSessionsShowCmd(a *app) *cobra.Command {
	var last int

	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print a session transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			rec, err := st.Load(cmd.Context(), args[0])
			if err != nil {
				a.logger.Warn("%v", err)
			}
			if rec == nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, headerStyle.Render("Session "+rec.ID))
			fmt.Fprintf(out, "%s message(s), updated %s\n\n",
				countStyle.Render(strconv.Itoa(rec.MessageCount)), dateStyle.Render(formatDate(rec.UpdatedAt)))
			for _, m := range rec.Messages.Window(last) {
				printMessage(out, m)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&last, "last", "n", 0, "Only show the last n messages")
	return cmd
}

func printMessage(out io.Writer, m transcript.Message) {
	label := string(m.Role)
	if m.Name != "" {
		label += " (" + m.Name + ")"
	}
	fmt.Fprintf(out, "%s %s\n", titleStyle.Render(label+":"), dateStyle.Render(m.Timestamp.Local().Format("15:04:05")))
	if m.Content != "" {
		fmt.Fprintln(out, m.Content)
	}
	for _, c := range m.ToolCalls {
		fmt.Fprintf(out, "%s %s(%s)\n", stageStyle.Render("calls"), c.Name, c.Arguments)
	}
	fmt.Fprintln(out)
}

func newSessionsClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <session-id>",
		Short: "Delete the messages of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Clear(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cleared session "+idStyle.Render(args[0]))
			return nil
		},
	}
}

func newSessionsExportCmd(a *app) *cobra.Command {
	var format, output string

	cmd := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Export a session as json, yaml, md or html",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format == "" && output != "" {
				format = strings.TrimPrefix(filepath.Ext(output), ".")
			}
			if format == "" {
				format = "json"
			}
			exporter, err := export.NewExporter(format)
			if err != nil {
				return err
			}

			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			rec, err := st.Load(cmd.Context(), args[0])
			if rec == nil {
				return err
			}

			if output == "" {
				return exporter.Export(rec, cmd.OutOrStdout())
			}
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", output, err)
			}
			if err := exporter.Export(rec, f); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "Exported session "+args[0]+" to "+output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "Export format: json, yaml, md, html (default from --output, else json)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	return cmd
}
