// Package rag provides the retrieval side of the agents: splitting a
// document into chunks and returning the chunks most relevant to a query.
//
// Two retrievers implement adapter.Retriever:
//
//   - KeywordRetriever scores chunks by query term overlap and needs no
//     external service.
//   - VectorStoreRetriever runs a similarity search against any langchaingo
//     vectorstores.VectorStore. MemoryVectorStore is a small in-process
//     implementation backed by a langchaingo embedder.
//
// Documents are split with langchaingo's recursive character splitter;
// NewManualSplitter uses chunks of 100 characters overlapping by 20.
package rag
