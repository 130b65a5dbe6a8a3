// Package cache provides the short-lived caches of the output core: an
// LRU of recent announcement keys with per-entry expiry, used to drop
// repeated announcements.
package cache
