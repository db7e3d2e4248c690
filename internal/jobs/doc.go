// Package jobs persists analysis jobs and their review items.
//
// A Job tracks one pass over one content field: the identification phase
// (text scanning) and, optionally, the enrichment phase (LLM suggestions).
// Items are the resolvable units produced by either phase. The Store is the
// single writer for both tables; status transitions are compare-and-swap
// updates so concurrent callers cannot move a job through an illegal edge.
//
// Resolution counters (ResolvedItems, EnrichmentResolved) are only changed by
// applyResolutionChange inside the same transaction as the item update, under
// a per-job lock, and are clamped to [0, total].
package jobs
