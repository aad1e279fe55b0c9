// Package testutil contains helper builders and utilities used across tests
// to reduce boilerplate when constructing sessions, assistant turns and
// repositories, plus a shared conformance suite every store.Repository
// implementation runs. These helpers are not intended for production usage.
package testutil
