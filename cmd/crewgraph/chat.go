package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/smallnest/crewgraph/adapter"
	"github.com/smallnest/crewgraph/memory"
	"github.com/spf13/cobra"
)

type chatOptions struct {
	session string
	manual  string
	embed   bool
	window  int
}

func newChatCmd(a *app) *cobra.Command {
	var opts chatOptions

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat with session memory",
		Long: `Send a message in a session and print the reply. Without a message,
read messages from stdin until EOF or "exit".

With --manual the most relevant chunks of the given text file are added
to every question.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runChat(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.session, "session", "s", "", "Session id (a new one is generated when empty)")
	cmd.Flags().StringVarP(&opts.manual, "manual", "m", "", "Text file to answer from")
	cmd.Flags().BoolVar(&opts.embed, "embed", false, "Retrieve manual chunks by embedding similarity instead of keywords")
	cmd.Flags().IntVar(&opts.window, "window", 0, "History messages sent to the model (default from config)")
	return cmd
}

func (a *app) runChat(cmd *cobra.Command, input string, opts chatOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	llm, err := a.model()
	if err != nil {
		return err
	}

	window := a.cfg.Chat.Window
	if opts.window > 0 {
		window = opts.window
	}
	convOpts := []memory.Option{memory.WithWindow(window), memory.WithLogger(a.logger)}
	if opts.manual != "" {
		retriever, err := a.loadManual(ctx, opts.manual, opts.embed)
		if err != nil {
			return err
		}
		convOpts = append(convOpts, memory.WithRetriever(retriever, a.cfg.Chat.TopK))
	}
	conv := memory.NewConversation(st, adapter.NewModelCompleter(llm), convOpts...)

	session := opts.session
	if session == "" {
		session = uuid.NewString()
		fmt.Fprintln(out, idStyle.Render("session "+session))
	}

	if input != "" {
		return sendChat(cmd, conv, session, input)
	}
	return chatLoop(cmd, conv, session, cmd.InOrStdin())
}

func sendChat(cmd *cobra.Command, conv *memory.Conversation, session, input string) error {
	reply, err := conv.Send(cmd.Context(), session, input)
	if reply.Content != "" {
		fmt.Fprintln(cmd.OutOrStdout(), titleStyle.Render("AI:")+" "+reply.Content)
	}
	return err
}

func chatLoop(cmd *cobra.Command, conv *memory.Conversation, session string, in io.Reader) error {
	out := cmd.OutOrStdout()
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, stageStyle.Render("You: "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		if err := sendChat(cmd, conv, session, line); err != nil {
			return err
		}
	}
}
