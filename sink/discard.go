// Package sink contains the concrete formatter implementations the CLI
// selects with its -f flag: json, plain, protocol and discard.
package sink

import rdb "github.com/rdbstream/rdbview"

// Discard returns a handler that ignores every value. Used for -f nil and
// wherever the caller only cares that decoding succeeded.
func Discard() rdb.FileHandler {
	return rdb.DiscardHandler{}
}
