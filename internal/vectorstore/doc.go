// Package vectorstore holds text chunks with their embedding vectors and
// metadata tags, and answers similarity and tag queries over them.
//
// A Store is fully in memory. Each Node carries one embedding and one
// key/value tag. Ids are assigned from a monotonic counter and are never
// reused. Persist writes the store to a directory as nodes.json and
// model.txt; Load reads it back and checks the model against the provider.
//
// Mutations (Add, Delete, AddDocument) are serialized by a write lock.
// Reads (Get, Query, the ranking phase of Search) share a read lock.
// Embedding calls run outside the lock, concurrently across chunks, and their
// results are reassembled in chunk order. The first failed chunk cancels the
// rest and the operation fails without changing the store.
package vectorstore
