// Package repository provides the Bun-backed queryable, a generic
// query/command repository with by-id resolution through runtime key
// metadata, upsert support, transactional variants and a unit of work that
// tracks the entities it reads.
package repository
