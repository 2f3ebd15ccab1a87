// Package metrics stores the engine's counters and latency histograms.
//
// Every counter is a padded atomic slot indexed by a small integer id, so
// Inc never allocates or locks. Histograms bucket durations into fixed
// upper bounds ending in +Inf. Readers take a point-in-time copy with
// Snapshot; exporters under metrics/export translate that copy.
//
// # What this package must NOT do
//
//   - Name metrics. Ids and exported names belong to the root package.
//   - Register with a global registry or perform I/O.
package metrics
