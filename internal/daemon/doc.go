// Package daemon coordinates the long-running Loreweave process.
//
// It wires configuration, the SQLite store, the analysis manager, the review
// service and the enrichment orchestrator into a single lifecycle with
// flock-based locking to prevent multiple instances sharing one database.
// On start it reclaims jobs a previous process left running, then serves the
// HTTP API. On stop it drains active enrichment runs before releasing the lock.
//
// Keep orchestration logic here: domain behavior lives in the analysis,
// review and enrichment packages while the daemon focuses on startup,
// shutdown, and request plumbing.
package daemon
