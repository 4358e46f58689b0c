// Package retriever implements hybrid retrieval: BM25 lexical
// pre-filtering, vector re-ranking over stored embeddings, score fusion,
// and assembly of the result set into a length-bounded context block.
package retriever
