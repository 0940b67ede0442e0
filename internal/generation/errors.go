package generation

import (
	"errors"
	"fmt"
)

var (
	ErrTaskCreationFailed = errors.New("failed to create video generation task")
	ErrGenerationFailed   = errors.New("video generation failed")
	ErrTimedOut           = errors.New("video generation timed out")
	ErrEmptyResult        = errors.New("no video url found in the response")
	ErrNoReference        = errors.New("no reference set for this group")
	ErrMemoryNotFound     = errors.New("memory entry not found")
)

// TimeoutError is returned when the poll budget runs out before the task
// reaches a terminal state. The memory entry stays pending and can be
// resumed by MemoryID.
type TimeoutError struct {
	MemoryID int
	TaskID   string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("task %s still running after poll budget (memory id %d)", e.TaskID, e.MemoryID)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimedOut
}

// PollError is returned when checking a task's status fails. The memory
// entry stays pending and can be resumed by MemoryID.
type PollError struct {
	MemoryID int
	TaskID   string
	Err      error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("poll task %s (memory id %d): %v", e.TaskID, e.MemoryID, e.Err)
}

func (e *PollError) Unwrap() error { return e.Err }
