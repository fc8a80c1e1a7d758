package boxoffice

import "fmt"

// Error is returned when the box office answers with a non-2xx status.
// Body holds at most maxErrorBody bytes of the response.
type Error struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("boxoffice %s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("boxoffice %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

const maxErrorBody = 4 << 10
