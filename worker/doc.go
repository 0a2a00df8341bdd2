// Package worker runs CPU-heavy geometry tasks on a bounded, auto-scaling
// set of isolated workers.
//
// A Pool keeps between MinWorkers and MaxWorkers workers. Tasks wait in a
// priority queue (higher priority first, FIFO within a priority) and are
// bound one at a time to an idle worker. Each bound task arms a timeout; a
// worker that times out or fails is killed and replaced, never reused, and
// its task is rejected. Other tasks are unaffected.
//
// Workers share no memory with the pool. Every Request and Response crosses
// the boundary as JSON, either through an in-process goroutine (InProcess)
// or a subprocess speaking JSON lines on stdin/stdout (Exec, Serve).
//
// There is no cooperative cancellation of a running task. Cancelling the
// context passed to Execute removes a queued task or stops the caller from
// waiting; the worker finishes or times out on its own.
package worker
