// Package watcher turns raw fsnotify events into debounced, per-path
// coalesced file change notifications for the embedding pipeline.
package watcher
