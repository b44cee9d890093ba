// Package audit dispatches security events asynchronously.
//
// [Dispatcher] buffers events in a bounded channel and relays them to a
// [Sink] from a single goroutine; with DropIfFull set a slow sink never
// blocks the request path and dropped events are counted instead. Which
// events to emit is decided by the engine, never here.
package audit
