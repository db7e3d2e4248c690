// Package preflight provides readiness checks for the filesystem paths and
// the language model endpoint that Loreweave depends on.
//
// These checks run in two contexts:
//   - The daemon entrypoint calls RunAll before starting and logs failures.
//   - The CLI "loreweave doctor" command renders every result as a table.
//
// The LLM check is skipped when enrichment is disabled.
package preflight
