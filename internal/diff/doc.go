// Package diff compares successive text snapshots and reports the minimal
// set of spans that changed.
//
// The engine trims the common prefix and suffix first, runs a Myers diff
// over line chunks of what remains, and refines each changed line block
// with a second Myers pass over word, whitespace and punctuation tokens.
// Each Myers pass is bounded by an edit-cost limit; a block that exceeds
// it is reported as a single replacement so latency stays bounded on
// wholesale rewrites of large buffers.
//
// The result is deterministic: identical inputs always produce identical
// operation lists.
package diff
