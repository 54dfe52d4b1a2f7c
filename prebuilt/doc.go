// Package prebuilt provides the two collaboration graphs crewgraph ships:
// a research/write/review team and a human-in-the-loop approval agent.
//
// # Review Team
//
// NewTeam wires three stages. Research runs a web search for the topic,
// write drafts an article from the research findings, and review checks the
// draft. A rejected draft goes back to write together with the reason; an
// approved draft ends the run. The number of rework cycles is bounded by
// MaxRevisions and running out of budget surfaces as
// graph.ErrGraphDidNotConverge.
//
//	team, err := prebuilt.NewTeam(prebuilt.TeamConfig{
//		Searcher: adapter.NewToolSearcher(tool.NewDuckDuckGo()),
//		Writer:   adapter.NewModelCompleter(llm),
//	})
//	final, err := team.Invoke(ctx, prebuilt.NewTeamState("Go generics"))
//
// # Approval Agent
//
// NewApprovalAgent runs an agent that may call tools and then asks a human
// to approve its answer. Any input other than the approve token ("ok" by
// default) is sent back to the agent as feedback.
//
// # Verdicts
//
// Review and approval stages produce a Verdict: Approved, Rejected with a
// reason, or Ambiguous. Routing reads the verdict from the state rather than
// matching on message text. What happens to an ambiguous verdict is decided
// by AmbiguousPolicy.
package prebuilt
