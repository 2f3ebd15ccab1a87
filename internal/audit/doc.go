// Package audit delivers security events (logins, refresh rotation, reuse
// detection, lockouts, permission denials) to a pluggable Sink off the
// request path.
//
// A Dispatcher owns a bounded queue and one delivery goroutine. When the
// queue is full it either drops the event and counts it, or blocks the
// caller until ctx is done. Close drains whatever is queued.
//
// Sinks shipped here: NoOpSink, ChannelSink (tests), JSONWriterSink (one
// object per line) and LogrusSink.
//
// # What this package must NOT do
//
//   - Decide which events exist. Event types are named by the engine.
//   - Import tenantauth or its flows.
package audit
