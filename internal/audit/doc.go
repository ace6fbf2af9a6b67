// Package audit delivers token lifecycle events to pluggable sinks.
//
// [Dispatcher] buffers events and hands them to a [Sink] from one background
// goroutine. Sinks provided here: [NoOpSink], [ChannelSink], [JSONWriterSink]
// and [LogrSink]. Which events exist is decided by the engine, not here.
package audit
