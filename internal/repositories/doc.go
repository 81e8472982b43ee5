// Package repositories persists the two kinds of local state a sync run keeps.
//
// Key Implementations:
//   - [SnapshotCache] : the library snapshot in tracklist.json. A readable file is authoritative and
//     skips Spotify entirely; a missing or malformed one triggers a remote fetch followed by a save.
//   - [HistoryRepository] : SQLite run history (runs and per-track outcomes) behind the history
//     commands and the skip-known-downloads check.
//
// Sequence numbers provide stable, human-readable run handles (run #42) independent of UUIDs.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
