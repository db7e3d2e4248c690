// Package analysis runs the identification phase: it validates a request,
// loads the campaign's known entities, scans the content with the detector,
// and records the detections as pending review items on a job.
//
// Re-analyzing a source reuses its latest job. New detections are upserted
// by matched text and span, pending items the new content no longer produces
// are pruned, and resolved items are kept as review history. A job whose
// identification failed is terminal, so the next request for that source
// starts a fresh job.
package analysis
