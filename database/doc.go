// Package database provides connection management for MySQL, PostgreSQL and
// SQLite on top of Bun, configuration loading, query hooks, SQL error
// classification and the model registry that feeds the metadata registry.
package database
