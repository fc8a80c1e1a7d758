package seatcache

import "fmt"

// CacheUnavailableError reports a transport-level failure talking to the
// seat cache.  "No data" is never reported this way.
type CacheUnavailableError struct {
	EventID int64
	Err     error
}

func (e *CacheUnavailableError) Error() string {
	return fmt.Sprintf("seat cache unavailable for event %d: %v", e.EventID, e.Err)
}

func (e *CacheUnavailableError) Unwrap() error { return e.Err }
