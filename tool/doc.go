// Package tool provides the langchaingo tools used by the crewgraph agents:
// web search (DuckDuckGo HTML results, Brave Search API), a multiply
// calculator, and a company manual lookup over a retriever.
//
// Every tool implements tools.Tool. Tools that accept structured arguments
// also implement Definer, so a model can be offered a JSON schema:
//
//	defs := tool.Definitions([]tools.Tool{tool.Multiply{}, manual})
//	resp, err := llm.GenerateContent(ctx, msgs, llms.WithTools(defs))
//
// HTTP failures are reported as *StatusError, temporary for 429 and 5xx
// responses.
package tool
