// Package derivative decides whether a cached derivative is still valid and
// produces missing ones at most once per cache key.
//
// Generation for a key is coalesced with singleflight: the first caller runs
// the pipeline while concurrent callers for the same key wait for its result.
// The pipeline runs on a context detached from the caller so that a waiter
// giving up does not abort work other waiters depend on; GenerationTimeout
// bounds it instead. Distinct keys generate in parallel, optionally limited by
// a weighted semaphore.
package derivative
