// Package api defines the wire-format types and the service facade behind the
// HTTP API. It translates jobs, items and campaign entities into
// transport-friendly DTOs that the CLI and other consumers can render without
// coupling to internal types.
//
// # Key Types
//
// Job and Item: transport representations of analysis jobs and their review
// items, including phase counters and suggested enrichment content.
//
// Service: composes the analysis manager, the review service and the
// enrichment orchestrator, validating requests and returning DTOs.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Internal enums (job status, phase,
// resolution, detection type) are exposed as lowercase strings. Timestamps use
// RFC3339 with milliseconds. Suggested content is passed through as
// json.RawMessage to avoid double-encoding.
//
// Request types carry validator tags checked by the daemon before they reach
// the Service; the Service still validates anything that needs domain
// knowledge, such as enum values.
package api
