// Package sinks implements concrete report consumers such as Prometheus,
// repository-backed storage, Pub/Sub fanout, blob snapshots, and structured
// logging. Each sink satisfies the progress.Sink interface and is safe for
// repeated Consume/Close cycles.
package sinks
