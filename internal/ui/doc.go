// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI provides a small workflow for inspecting predictions:
//  1. [FileListView] : Browse the discovered image files
//  2. [PredictView] : Per-model probability bars for one image, switching models with ←/→
//  3. [BatchView] : Monitor a batch run over every file
//  4. [SummaryView] : Counts, failures and the written report
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Progress updates flow through a channel from the BatchEngine, providing non-blocking status reporting during batch runs.
//
// Keyboard navigation uses vim-style bindings (j/k, h/l, enter, esc, b, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
