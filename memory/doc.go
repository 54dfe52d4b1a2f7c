// Package memory gives a completer conversational memory backed by a
// session store.
//
// A Conversation loads the session transcript, keeps a window of the most
// recent messages, optionally adds retrieved context, and persists the
// human input together with the reply once the completion succeeded:
//
//	conv := memory.NewConversation(st, completer,
//		memory.WithWindow(10),
//		memory.WithRetriever(manual, 3),
//	)
//	reply, err := conv.Send(ctx, "user_123", "How many days of annual leave do I get?")
//
// MergeRun records the transcript of a finished graph run in a session so
// team and agent runs show up next to chat history.
package memory
