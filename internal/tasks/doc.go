// Package tasks runs digit classification over many image files with real-time progress reporting.
//
// # Core Operation
//
// [BatchEngine.Run] classifies a set of files and directories:
//
//  1. [Discover] expands directories into their image files (sorted, de-duplicated)
//  2. A worker pool preprocesses and classifies each image, optionally rate limited
//  3. Each image's top picks are persisted through the optional [Recorder]
//  4. A report in the requested [formatter.Format] and a JSON manifest are written to the output directory
//
// Per-image failures (unreadable or undecodable files) are collected in the result and never abort the run.
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates.
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
// Updates use select with default to prevent blocking.
//
// # Implementation
//
// [BatchEngine] depends on:
//   - [Classifier] : inference.Runner in production
//   - [Recorder] : Optional persistence layer (repositories.PredictionRepository)
package tasks
