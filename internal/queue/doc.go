// Package queue holds utterances waiting for the dispatcher.
// It orders them by priority and insertion order, coalesces duplicates,
// applies the alert interruption rule and bounds its size by dropping
// background chatter first.
package queue
