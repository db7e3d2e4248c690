// Package storage owns the SQLite database shared by the job store and the
// bundled campaign adapter.
//
// Open applies connection pragmas through the DSN so every pooled connection
// gets them, and starts write transactions with BEGIN IMMEDIATE so
// read-modify-write sequences serialize at the database. Schema changes bump
// schemaVersion; an existing database with a different version is rejected
// rather than migrated.
package storage
