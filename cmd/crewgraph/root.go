package main

import (
	"context"
	"fmt"
	"io"

	"github.com/smallnest/crewgraph/config"
	"github.com/smallnest/crewgraph/llms/openaicompat"
	"github.com/smallnest/crewgraph/log"
	"github.com/smallnest/crewgraph/store"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	configPath string
	verbose    bool
	backend    string
	storePath  string

	cfg    *config.Config
	logger log.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "crewgraph",
		Short: "Agent collaboration graphs with persistent session transcripts",
		Long: `crewgraph runs small agent teams as graphs of named stages.

  crewgraph team "Go generics"               # research, write and review an article
  crewgraph chat --session u1 "hello"        # chat with memory
  crewgraph agent "what is 6 times 7?"       # tool-using agent with human approval
  crewgraph sessions list                    # inspect stored sessions

Settings come from crewgraph.yaml, CREWGRAPH_* variables, and
OPENAI_API_KEY / DASHSCOPE_BASE_URL / BRAVE_API_KEY.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd.ErrOrStderr())
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Config file (default ./crewgraph.yaml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&a.backend, "store", "", "Session store backend: file, memory, sqlite, redis, postgres")
	root.PersistentFlags().StringVar(&a.storePath, "store-path", "", "Session file or database path")
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(
		newTeamCmd(a),
		newChatCmd(a),
		newAgentCmd(a),
		newSessionsCmd(a),
	)
	return root
}

func (a *app) load(stderr io.Writer) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.backend != "" {
		cfg.Store.Backend = a.backend
	}
	if a.storePath != "" {
		cfg.Store.Path = a.storePath
	}
	if a.verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = cfg.NewLogger(stderr)
	log.SetDefaultLogger(a.logger)
	return nil
}

func (a *app) openStore(ctx context.Context) (store.Store, error) {
	st, err := a.cfg.OpenStore(ctx, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", a.cfg.Store.Backend, err)
	}
	return st, nil
}

func (a *app) model() (*openaicompat.LLM, error) {
	llm, err := a.cfg.NewModel()
	if err != nil {
		return nil, fmt.Errorf("failed to create model client: %w", err)
	}
	return llm, nil
}
