// Package testutil contains helper builders and utilities used across tests
// to reduce boilerplate when constructing events and fake collaborators
// (stores, pinned text sources). These helpers are not intended for
// production usage.
package testutil
