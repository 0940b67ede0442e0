package render

import (
	"fmt"
	"strings"
)

// RequestError is returned when the render service answers with a
// non-success HTTP status.
type RequestError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("render %s: http %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("render %s: http %d: %s", e.Op, e.StatusCode, body)
}
