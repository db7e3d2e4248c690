// Package services defines shared utilities consumed by the analysis, review,
// and enrichment components and their external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, item IDs, phases, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper. Every failure surfaced to
//     API callers carries exactly one marker so transports can map it to a
//     stable kind (validation, not_found, already_resolved, ...).
//
// Use these helpers when wiring new logic so error classification and
// observability stay uniform across the service.
package services
