package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/smallnest/crewgraph/adapter"
	"github.com/smallnest/crewgraph/export"
	"github.com/smallnest/crewgraph/graph"
	"github.com/smallnest/crewgraph/memory"
	"github.com/smallnest/crewgraph/prebuilt"
	"github.com/smallnest/crewgraph/transcript"
	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/llms"
)

type teamOptions struct {
	out          string
	session      string
	modelReview  bool
	maxRevisions int
	mermaid      bool
}

func newTeamCmd(a *app) *cobra.Command {
	var opts teamOptions

	cmd := &cobra.Command{
		Use:   "team <topic>",
		Short: "Research, write and review an article",
		Long: `Run the research, write and review team on a topic.

The researcher searches the web, the writer drafts an article from the
findings, and the reviewer approves it or sends it back with a reason.
Rework stops after --max-revisions rewrites.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if opts.mermaid {
				return nil
			}
			return cobra.MinimumNArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTeam(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "Write the article to a .md or .html file")
	cmd.Flags().StringVarP(&opts.session, "session", "s", "", "Record the run in this session")
	cmd.Flags().BoolVar(&opts.modelReview, "model-review", false, "Ask the model to review drafts that pass the length check")
	cmd.Flags().IntVar(&opts.maxRevisions, "max-revisions", 0, "Maximum number of rewrites (default from config)")
	cmd.Flags().BoolVar(&opts.mermaid, "mermaid", false, "Print the team graph as a Mermaid diagram and exit")
	return cmd
}

func (a *app) teamConfig(opts teamOptions) (prebuilt.TeamConfig, error) {
	tc := prebuilt.TeamConfig{
		Persona:         a.cfg.Team.Persona,
		MinLength:       a.cfg.Team.MinLength,
		MaxRevisions:    a.cfg.Team.MaxRevisions,
		AmbiguousPolicy: a.cfg.TeamPolicy(),
		StageTimeout:    a.cfg.Team.StageTimeout,
		StageRetry:      &graph.RetryPolicy{MaxRetries: 1, BackoffStrategy: graph.FixedBackoff, BaseDelay: time.Second},
		Logger:          a.logger,
	}
	if opts.maxRevisions > 0 {
		tc.MaxRevisions = opts.maxRevisions
	}

	// drawing the graph needs no model or search backend
	if opts.mermaid {
		tc.Searcher = adapter.SearcherFunc(func(ctx context.Context, q string) (string, error) { return "", nil })
		tc.Writer = adapter.CompleterFunc(func(ctx context.Context, msgs []transcript.Message, options ...llms.CallOption) (transcript.Message, error) {
			return transcript.AI(""), nil
		})
		return tc, nil
	}

	llm, err := a.model()
	if err != nil {
		return prebuilt.TeamConfig{}, err
	}
	search, err := a.cfg.NewSearchTool()
	if err != nil {
		return prebuilt.TeamConfig{}, err
	}
	writer := adapter.NewModelCompleter(llm)
	tc.Searcher = adapter.NewToolSearcher(search)
	tc.Writer = writer
	if opts.modelReview || a.cfg.Team.ModelReview {
		tc.Reviewer = writer
	}
	return tc, nil
}

func (a *app) runTeam(cmd *cobra.Command, topic string, opts teamOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	tc, err := a.teamConfig(opts)
	if err != nil {
		return err
	}
	team, err := prebuilt.NewTeam(tc)
	if err != nil {
		return err
	}

	if opts.mermaid {
		_, err := fmt.Fprintln(out, graph.NewExporter(team.Graph()).DrawMermaid())
		return err
	}

	fmt.Fprintln(out, headerStyle.Render("Team run: "+topic))
	exec := team.Stream(ctx, prebuilt.NewTeamState(topic))
	for ev := range exec.Events() {
		printTeamEvent(out, ev)
	}
	final, runErr := exec.Wait()

	draft, ok := prebuilt.LatestDraft(final)
	if ok {
		fmt.Fprintln(out)
		fmt.Fprintln(out, titleStyle.Render("Article"))
		fmt.Fprintln(out, draft.Content)
	}

	if runErr != nil {
		if errors.Is(runErr, graph.ErrGraphDidNotConverge) && ok {
			fmt.Fprintln(out, rejectedStyle.Render("The last draft was never approved."))
		}
		return runErr
	}

	if opts.out != "" && ok {
		if err := writeArticle(opts.out, topic, draft.Content); err != nil {
			return err
		}
		fmt.Fprintln(out, dateStyle.Render("Saved to "+opts.out))
	}
	if opts.session != "" {
		return a.recordRun(cmd, opts.session, final.Messages)
	}
	return nil
}

func printTeamEvent(w io.Writer, ev graph.StreamEvent) {
	switch ev.Event {
	case graph.NodeEventComplete:
		line := fmt.Sprintf("%s %s", idStyle.Render(fmt.Sprintf("step %d", ev.Step)), stageStyle.Render(ev.NodeName))
		if ev.NodeName == prebuilt.StageReview {
			if state, ok := ev.State.(graph.MessagesState); ok {
				if v, ok := prebuilt.VerdictOf(state); ok {
					line += " " + verdictText(v)
				}
			}
		}
		fmt.Fprintf(w, "%s %s\n", line, dateStyle.Render(ev.Duration.Round(time.Millisecond).String()))
	case graph.NodeEventError:
		fmt.Fprintf(w, "%s %s\n", stageStyle.Render(ev.NodeName), errorStyle.Render(ev.Error.Error()))
	}
}

func verdictText(v prebuilt.Verdict) string {
	if v.Kind == prebuilt.Approved {
		return approvedStyle.Render(v.String())
	}
	return rejectedStyle.Render(v.String())
}

func writeArticle(path, title, content string) error {
	var data string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		data = content + "\n"
	case ".html", ".htm":
		data = export.Page(title, content)
	default:
		return fmt.Errorf("unsupported output file %s: use .md or .html", path)
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func (a *app) recordRun(cmd *cobra.Command, sessionID string, msgs transcript.Transcript) error {
	st, err := a.openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := memory.MergeRun(cmd.Context(), st, sessionID, msgs)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), dateStyle.Render(fmt.Sprintf("Recorded %d message(s) in session %s", n, sessionID)))
	return nil
}
