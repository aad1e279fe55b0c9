// Package embedding turns text into fixed-length float vectors used for
// nearest-neighbor resolution of todo items.
//
// Two call shapes exist:
//
//   - EmbedDocument computes the representative vector stored with an item. The
//     text is split into sentence chunks and the first chunk's vector is used.
//   - Embed computes a single vector for the full query text at lookup time.
//
// OpenAIEmbedder talks to the OpenAI embeddings endpoint; HashEmbedder is a
// deterministic, offline feature-hashing embedder suitable for tests and demos.
package embedding
