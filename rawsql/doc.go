// Package rawsql maps the rows of hand-written SQL onto Go values by column
// name and owns the connection lifecycle of such queries.
package rawsql
