/*
Package pipeline implements a generic bounded worker pool.

A Pool owns a fixed set of worker goroutines and a bounded FIFO job
queue. Callers hand jobs to Schedule, which blocks once the queue is
full, and observe finished work through listener callbacks registered
with RegisterListener. The pool is generic over its job and result
types so that each processing stage can reuse the same scheduling,
draining and termination machinery without any stage-specific logic
leaking into the pool itself.

Listeners are invoked synchronously from the worker goroutine that
produced the result. This keeps result delivery cheap and lets a slow
consumer propagate backpressure to the workers, but it requires
listener code to be safe for concurrent invocation.
*/
package pipeline
