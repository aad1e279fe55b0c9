// Package store implements the todo item store. Items are resolved by
// embedding similarity: every lookup embeds the caller's text and picks the
// nearest stored vector, so paraphrased references ("the milk thing") reach
// the intended item without the caller knowing its id.
//
// Persistence is delegated to a Repository. Two implementations ship with
// todomesh: store/sqlstore (durable) and memory (process local).
package store
