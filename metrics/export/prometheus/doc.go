// Package prometheus exposes tenantauth engine counters through
// client_golang.
//
// [NewCollector] returns a prometheus.Collector that reads
// [tenantauth.Engine.MetricsSnapshot] on every scrape. Counter names are
// tenantauth_*_total; the single histogram is
// tenantauth_validate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register in the global Prometheus registry. Callers register the
//     Collector or mount its Handler.
//   - Mutate engine state.
package prometheus
