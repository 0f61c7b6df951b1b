// Package queue implements the delivery queue: the ordered job collection,
// its status state machine, and the retry/backoff logic that drives a job
// from enqueue to a terminal delivered/failed state.
//
// All queue state is guarded by a single mutex. Sender calls and backoff
// waits happen outside the lock; backoff is a timer-scheduled resubmission,
// never a blocking sleep, so one job's retry wait cannot stall the others.
package queue
