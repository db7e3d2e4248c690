// Package enrichment runs the optional LLM phase of a job.
//
// A run is grounded in the entities the reviewer linked during
// identification. It asks the configured Generator for description updates,
// narrative log entries and relationship suggestions, and stores the parsed
// results as pending enrichment items in one transaction. Any provider or
// parsing failure fails the whole run and nothing is stored.
//
// Runs execute on background goroutines owned by the Orchestrator. At most one
// run is active per job, tracked both in memory and by the job row's run id.
// Cancellation is cooperative: a flag is checked before every generate call
// and before persisting, and a run that observes it discards its results.
package enrichment
