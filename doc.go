// crewgraph - Agent Collaboration Graphs with Persistent Session Transcripts
//
// crewgraph runs small teams of LLM agents as graphs of named stages with
// pure routing functions, bounded rework cycles and a durable transcript per
// session. Model completion, web search and retrieval are reached through
// narrow capability interfaces so every stage can be tested without a
// network.
//
// # Quick Start
//
// Install the command:
//
//	go install github.com/smallnest/crewgraph/cmd/crewgraph@latest
//
// Research, write and review an article:
//
//	export OPENAI_API_KEY=sk-...
//	crewgraph team "Go generics" --out article.html
//
// Or build the same team in code:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//
//		"github.com/smallnest/crewgraph/adapter"
//		"github.com/smallnest/crewgraph/llms/openaicompat"
//		"github.com/smallnest/crewgraph/prebuilt"
//		"github.com/smallnest/crewgraph/tool"
//	)
//
//	func main() {
//		llm, _ := openaicompat.New()
//
//		team, _ := prebuilt.NewTeam(prebuilt.TeamConfig{
//			Searcher: adapter.NewToolSearcher(tool.NewDuckDuckGo()),
//			Writer:   adapter.NewModelCompleter(llm),
//		})
//
//		final, err := team.Invoke(context.Background(), prebuilt.NewTeamState("Go generics"))
//		if err != nil {
//			panic(err)
//		}
//		draft, _ := prebuilt.LatestDraft(final)
//		fmt.Println(draft.Content)
//	}
//
// # Key Features
//
//   - Typed graphs: generic StateGraph[S] with compile-time checked routing targets
//   - Bounded cycles: a step budget ends runaway rework with GraphDidNotConvergeError
//   - Verdicts: reviewers return Approved, Rejected or Ambiguous instead of free text
//   - Human in the loop: an approval agent that loops on reviewer feedback
//   - Session store: file, memory, SQLite, Redis and PostgreSQL backends
//   - Streaming: per-stage events and the final state from a single run
//
// # Package Structure
//
// transcript/
// Role-tagged messages and their conversion to langchaingo message types.
//
// store/
// The session transcript store interface and its backends. Appends stamp a
// monotonic timestamp and persist before returning.
//
// graph/
// The state graph engine: nodes, static and conditional edges, schemas,
// retries, node timeouts, listeners, streaming and Mermaid export.
//
//	g := graph.NewStateGraph[graph.MessagesState]()
//	g.SetSchema(graph.MessagesSchema{})
//	g.AddNode("draft", "Write a draft", draft)
//	g.AddNode("review", "Check the draft", review)
//	g.SetEntryPoint("draft")
//	g.AddEdge("draft", "review")
//	g.AddConditionalEdge("review", route, "draft", graph.END)
//	g.SetMaxSteps(9)
//
//	runnable, _ := g.Compile()
//	final, err := runnable.Invoke(ctx, graph.NewMessagesState(transcript.Human("topic")))
//
// prebuilt/
// The research, write and review team, the approval agent, verdicts and the
// tool executor.
//
// adapter/
// Completer, Searcher and Retriever capabilities and their error taxonomy.
//
// llms/openaicompat/
// A langchaingo model for OpenAI compatible endpoints such as DashScope.
//
// tool/, rag/
// Web search, calculator and manual lookup tools, and keyword or vector
// retrieval over split documents.
//
// memory/, export/, config/
// Chat with session memory, transcript export, and viper configuration.
package crewgraph // import "github.com/smallnest/crewgraph"
