// Package types contains the shared domain types of the retrieval core:
// documents, lexical candidates, vector entries, embedding jobs, file
// change events, and the hybrid result/context shapes returned to callers.
package types
