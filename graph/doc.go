// Package graph provides the state graph executor behind the crewgraph
// pipelines.
//
// A graph is a set of named nodes, each a function from the current state
// to a state update, connected by static edges and conditional edges whose
// routers are pure functions of the state. Execution is sequential: one node
// runs at a time, its update is merged into the state through the graph's
// StateSchema, and the outgoing edge picks the next node until END.
//
// # Key Features
//
//   - Generic StateGraph[S] with compile-time validation of edges
//   - Cycles for rework loops, bounded by a step budget (SetMaxSteps)
//   - Per-node timeouts reported as retryable *NodeTimeoutError
//   - RetryPolicy with fixed, linear or exponential backoff
//   - Listeners for progress reporting
//   - Streaming that observes the same run Invoke would perform
//   - Mermaid export of the graph structure
//
// # Example Usage
//
//	g := graph.NewStateGraph[graph.MessagesState]()
//	g.SetSchema(graph.MessagesSchema{})
//
//	g.AddNode("write", "Draft an answer", writeFn)
//	g.AddNode("review", "Check the draft", reviewFn)
//	g.SetEntryPoint("write")
//	g.AddEdge("write", "review")
//	g.AddConditionalEdge("review", func(ctx context.Context, s graph.MessagesState) string {
//		if s.GetString("verdict") == "approved" {
//			return graph.END
//		}
//		return "write"
//	}, "write", graph.END)
//	g.SetMaxSteps(7)
//
//	app, err := g.Compile()
//	if err != nil {
//		return err
//	}
//
//	exec := app.Stream(ctx, graph.NewMessagesState(transcript.Human("topic")))
//	for ev := range exec.Events() {
//		fmt.Println(ev.Step, ev.NodeName, ev.Event)
//	}
//	final, err := exec.Wait()
//	if errors.Is(err, graph.ErrGraphDidNotConverge) {
//		// the reviewer never approved; final holds the last draft
//	}
//
// # Error Handling
//
// A node that keeps failing surfaces as *NodeError carrying the node name
// and the number of attempts. Exceeding the step budget surfaces as
// *GraphDidNotConvergeError, distinct from a normal END. In both cases the
// last merged state is returned with the error.
package graph
