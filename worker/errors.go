package worker

import (
	"errors"
	"fmt"
)

// Sentinel errors. Rejections wrap them, so test with errors.Is.
var (
	// ErrTimeout rejects a task whose worker did not reply in time.
	ErrTimeout = errors.New("worker: task timed out")

	// ErrWorkerFailed rejects a task whose worker crashed, sent a malformed
	// message or could not be started.
	ErrWorkerFailed = errors.New("worker: worker failed")

	// ErrTerminated rejects tasks submitted to or pending in a terminated pool.
	ErrTerminated = errors.New("worker: pool terminated")
)

// TaskError is returned when the worker replied with an error.
type TaskError struct {
	ID      string
	Type    MessageType
	Message string
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("worker: task %s (%s): %s", e.ID, e.Type, e.Message)
}
