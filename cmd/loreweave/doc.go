// Package main hosts the Loreweave CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into HTTP
// calls against the daemon API, runs the daemon in the foreground, checks
// readiness and scaffolds configuration. Review state is only ever changed
// through the daemon so the CLI never opens the database for writing.
package main
