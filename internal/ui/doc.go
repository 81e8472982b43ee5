// Package ui renders sync progress in the terminal.
//
// Two front ends consume the [tasks.ProgressUpdate] channel of a sync run:
//  1. [Printer] : one line per resolved track with a small progress bar, used by plain `beatsync sync`
//  2. [SyncModel] : a bubbletea program for `beatsync sync --tui` with a live progress bar,
//     running counters and the most recent outcomes
//
// The [SyncModel] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Quitting while the run is in progress cancels its context. The engine then flushes the ledger and the model
// exits once the final result arrives.
//
// Colors come from a lipgloss [Palette]. [Summary] renders the end-of-run report for both front ends.
package ui
