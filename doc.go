// Package northward provides a dependency-aware migration runner with
// pluggable storage engines (DynamoDB, in-memory), migration discovery
// across flat, migrations-subfolder and per-module layouts, recursive
// dependency resolution, dry runs, rollback and status reporting.
//
// Migration scripts are Go files registered at init time (see Register).
// The runner is single-writer: it performs no locking, so only one
// migrator process should run against a given storage table at a time.
package northward
