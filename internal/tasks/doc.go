// Package tasks runs the sync pipeline over a library snapshot with real-time progress reporting.
//
// # Control Loop
//
// [SyncEngine.Run] processes tracks strictly one after another:
//
//  1. History check (optional)
//     - A track whose source id was downloaded by an earlier run, and whose folder is still
//     populated, is resolved without any network call
//
//  2. Search and select
//     - Queries the catalog through a [Searcher]
//     - A [Selector] accepts one candidate or rejects the track with a reason
//     - Search failures degrade to a miss for that track only
//
//  3. Materialize
//     - [Materializer] fetches the archive and extracts it into "<Artist>-<Title>"
//     - A populated destination skips the download entirely
//     - Failures remove any partial folder and record a miss
//
// # Ledger
//
// The [Ledger] keeps the downloaded map ids and the "artist - title" misses in processing
// order. It is flushed when the run starts, after every track, and at the end, so an
// interrupted run keeps everything resolved so far.
//
// # Progress Reporting
//
// # All operations use non-blocking channels for progress updates
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
// Updates use select with default to prevent blocking.
//
// # Run History
//
// The optional [HistoryStore] (repositories.HistoryRepository) records every outcome.
// History errors are logged and never stop a run.
package tasks
