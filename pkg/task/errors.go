package task

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyJoined is returned by Join when the handle's result was
	// already drained by an earlier Join.
	ErrAlreadyJoined = errors.New("task: already joined")
	// ErrGroupedTask is returned by Join on a handle owned by a Group;
	// the group's JoinAll owns its result.
	ErrGroupedTask = errors.New("task: cannot join grouped task")
	// ErrClosed is the failure recorded for tasks spawned after the
	// scheduler was closed.
	ErrClosed = errors.New("task: scheduler closed")

	// ErrCancelled classifies abort outcomes; match with errors.Is.
	// The concrete error is always *CancelledError.
	ErrCancelled = errors.New("task cancelled")
	// ErrTimeout classifies timeout outcomes; the concrete error is
	// always *TimeoutError.
	ErrTimeout = errors.New("task timeout")
)

// CancelledError is the Join outcome of a task stopped by Abort.
type CancelledError struct {
	ID uint64
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("task %d was cancelled", e.ID)
}

func (e *CancelledError) Is(target error) bool { return target == ErrCancelled }

// TimeoutError is the Join outcome of a task that exceeded its configured
// timeout. The message deliberately omits the id; the id is carried
// structurally.
type TimeoutError struct {
	ID uint64
}

func (e *TimeoutError) Error() string { return "task exceeded timeout" }

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// IsCancelled reports whether err is an abort outcome.
func IsCancelled(err error) bool { return errors.Is(err, ErrCancelled) }

// IsTimeout reports whether err is a timeout outcome.
func IsTimeout(err error) bool { return errors.Is(err, ErrTimeout) }
