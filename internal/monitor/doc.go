// Package monitor keeps a two-field display synchronized with a remote
// background task.
//
// A Monitor listens on a push channel for progress_update events. When the
// push channel reports a connection error it falls back to pulling the same
// report from an HTTP endpoint at a fixed interval, and it stops pulling as
// soon as the push channel connects. Whichever report arrives last is
// rendered.
//
// All push events, poll ticks, and pull completions are serialized through a
// single event loop goroutine, so the display and the poll timer have exactly
// one writer.
package monitor
