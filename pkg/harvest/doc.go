// Package harvest drives comment pagination for each post and runs many
// posts concurrently.
//
// A Driver takes one post through Start, Fetching and finally Done or
// Aborted. Every page goes through the host rate limiter and the retry
// policy, is parsed by the platform Source, filtered by the per-post
// dedup set, appended to the sink and only then checkpointed. A crash
// therefore costs at most one page of repeated work, which the seeded
// dedup set absorbs on the next run.
//
// The Orchestrator validates credentials once, skips posts whose
// checkpoint is done, and feeds the rest to a bounded worker pool. An
// auth failure on any post cancels the whole run.
package harvest
