package bot

import (
	"discord-video-bot/internal/generation"
	"discord-video-bot/internal/quota"
	"discord-video-bot/internal/rag"
	"discord-video-bot/internal/render"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrPermissionDenied is returned when a non-admin runs an admin command.
var ErrPermissionDenied = errors.New("permission denied")

// ValidationError carries the message shown to the user for bad input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

const genericFailure = "Something went wrong. Please try again later."

// maxDetailBytes caps how much of a render service response body is echoed
// back to the chat.
const maxDetailBytes = 200

// userMessage converts a command error into the reply text. internal is
// true when the error is not the user's doing and should be logged.
func userMessage(err error) (msg string, internal bool) {
	var (
		validation *ValidationError
		exceeded   *quota.ExceededError
		timeout    *generation.TimeoutError
		pollFailed *generation.PollError
		request    *render.RequestError
	)

	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "You don't have permission to use this command.", false
	case errors.As(err, &validation):
		return validation.Message, false
	case errors.As(err, &exceeded):
		if exceeded.Scope == quota.GroupLimitExceeded {
			return "Group has reached its monthly limit.", false
		}
		return "You have reached your monthly limit.", false
	case errors.Is(err, generation.ErrNoReference):
		return "No reference set for this group.", false
	case errors.As(err, &timeout):
		return fmt.Sprintf("Video generation is taking too long. Use /memory %d to check the status.", timeout.MemoryID), false
	case errors.Is(err, generation.ErrGenerationFailed):
		return "Video generation failed.", false
	case errors.Is(err, generation.ErrEmptyResult):
		return "No video URL found in the response.", false
	case errors.Is(err, generation.ErrMemoryNotFound):
		return "No memory found with that ID.", false
	case errors.Is(err, rag.ErrUnavailable):
		return "Memory search is not enabled on this bot.", false
	case errors.As(err, &pollFailed):
		return fmt.Sprintf("Could not check the video status. Use /memory %d to try again.", pollFailed.MemoryID), true
	case errors.As(err, &request):
		if detail := truncate(strings.TrimSpace(request.Body), maxDetailBytes); detail != "" {
			return fmt.Sprintf("Error: the video service answered with HTTP %d: %s", request.StatusCode, detail), true
		}
		return fmt.Sprintf("Error: the video service answered with HTTP %d.", request.StatusCode), true
	case errors.Is(err, generation.ErrTaskCreationFailed):
		return "Failed to create video generation task.", true
	default:
		return genericFailure, true
	}
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
