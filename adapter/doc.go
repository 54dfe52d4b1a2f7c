// Package adapter defines the narrow capability interfaces the agents call
// out to: text completion, web search and retrieval.
//
// Each capability has a func adapter for tests and small integrations, and
// the package provides bridges from langchaingo models and tools:
//
//	completer := adapter.NewModelCompleter(llm)
//	searcher := adapter.NewToolSearcher(tool.NewDuckDuckGo())
//
// Failures are reported as *CapabilityError. A transient failure (rate
// limiting, timeouts, 5xx responses) is marked Transient and is retried by
// the graph retry policy; anything else fails fast.
package adapter
