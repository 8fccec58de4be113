// Package store holds the most recently published report snapshot in memory.
// Reload reads every report document from the reports bucket (either output
// layout) and swaps the snapshot atomically; Run reloads on a ticker and
// notifies listeners after each successful reload.
package store
