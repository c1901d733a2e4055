// Package progress provides the Report value, the server-side Tracker that
// owns the current report, and a non-blocking Hub that hands the newest
// accepted report to pluggable sinks such as Prometheus metrics, persistent
// storage, or Pub/Sub.
package progress
