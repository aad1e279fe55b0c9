// Package memory provides a process-local store.Repository. It keeps items in
// insertion order and resolves nearest-neighbor queries with a linear cosine
// distance scan. Suitable for tests, demos and single-process deployments;
// use store/sqlstore when items must survive restarts.
package memory
