// Package scheduler provides the serialized execution context used to run
// delayed retries and posted completions.
package scheduler

import "time"

// Scheduler runs tasks one at a time, in posting order for immediate tasks
// and in expiry order for delayed ones.
type Scheduler interface {
	// Post queues task for execution as soon as the loop is free.
	Post(task func())
	// PostDelayed queues task after delay has elapsed.
	PostDelayed(task func(), delay time.Duration) Timer
}

// Timer is a handle to a delayed task.
type Timer interface {
	// Stop prevents the task from running. It reports false when the task
	// has already started or was stopped before.
	Stop() bool
}
