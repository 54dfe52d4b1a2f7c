package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/smallnest/crewgraph/adapter"
	"github.com/smallnest/crewgraph/graph"
	"github.com/smallnest/crewgraph/prebuilt"
	"github.com/smallnest/crewgraph/tool"
	"github.com/smallnest/crewgraph/transcript"
	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/tools"
)

type agentOptions struct {
	session string
	manual  string
	embed   bool
}

func newAgentCmd(a *app) *cobra.Command {
	var opts agentOptions

	cmd := &cobra.Command{
		Use:   "agent <question>",
		Short: "Answer with tools and ask for your approval",
		Long: `Run the approval agent. The agent may call the multiply tool and,
with --manual, the company manual lookup. Every answer is shown for
review: reply with the approve token (default "ok") to accept it, or type
feedback to have the agent revise it.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runAgent(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.session, "session", "s", "", "Record the run in this session")
	cmd.Flags().StringVarP(&opts.manual, "manual", "m", "", "Text file served by the company_manual tool")
	cmd.Flags().BoolVar(&opts.embed, "embed", false, "Retrieve manual chunks by embedding similarity instead of keywords")
	return cmd
}

// consoleReviewer shows answers on out and reads the review from in.
type consoleReviewer struct {
	out   io.Writer
	in    *bufio.Reader
	token string
}

func (r *consoleReviewer) Review(ctx context.Context, answer transcript.Message) (string, error) {
	fmt.Fprintln(r.out, answerStyle.Render(answer.Content))
	fmt.Fprintf(r.out, "Reply %q to approve, or type feedback: ", r.token)

	line, err := r.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read review: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func (a *app) runAgent(cmd *cobra.Command, question string, opts agentOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	llm, err := a.model()
	if err != nil {
		return err
	}

	agentTools := []tools.Tool{tool.Multiply{}}
	if opts.manual != "" {
		retriever, err := a.loadManual(ctx, opts.manual, opts.embed)
		if err != nil {
			return err
		}
		agentTools = append(agentTools, tool.NewManual(retriever, a.cfg.Chat.TopK))
	}

	runnable, err := prebuilt.NewApprovalAgent(prebuilt.ApprovalConfig{
		Agent:           adapter.NewModelCompleter(llm),
		Human:           &consoleReviewer{out: out, in: bufio.NewReader(cmd.InOrStdin()), token: a.cfg.Approval.ApproveToken},
		Tools:           agentTools,
		ApproveToken:    a.cfg.Approval.ApproveToken,
		AmbiguousPolicy: a.cfg.ApprovalPolicy(),
		MaxSteps:        a.cfg.Approval.MaxSteps,
		StageTimeout:    a.cfg.Approval.StageTimeout,
		Logger:          a.logger,
		Listeners: []graph.NodeListener{graph.NodeListenerFunc(
			func(ctx context.Context, event graph.NodeEvent, node string, state any, err error) {
				if event == graph.NodeEventComplete && node == prebuilt.StageTools {
					fmt.Fprintln(out, idStyle.Render("tools ran"))
				}
			},
		)},
	})
	if err != nil {
		return err
	}

	final, err := runnable.Invoke(ctx, graph.NewMessagesState(transcript.Human(question)))
	if err != nil {
		return err
	}
	fmt.Fprintln(out, approvedStyle.Render("Approved."))

	if opts.session != "" {
		return a.recordRun(cmd, opts.session, final.Messages)
	}
	return nil
}
