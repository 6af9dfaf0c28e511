package binder

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrPrecondition marks job-level aborts caused by unusable input.
var ErrPrecondition = errors.New("precondition failed")

// Precondition errors. Each matches errors.Is(err, ErrPrecondition).
var (
	ErrNoContainerName  = fmt.Errorf("%w: no container name in page", ErrPrecondition)
	ErrEmptyMergeInput  = fmt.Errorf("%w: merge input is empty", ErrPrecondition)
	ErrDuplicateOrdinal = fmt.Errorf("%w: merge input is not strictly ordered", ErrPrecondition)
)

// FetchError is a transport failure or a non-success response.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Temporary reports whether retrying the request may succeed.
func (e *FetchError) Temporary() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	default:
		return e.StatusCode >= http.StatusInternalServerError
	}
}

// MergeError is an I/O failure during reduction. No output is committed when it is returned.
type MergeError struct {
	Chunk int // -1 for the final fold
	Err   error
}

func (e *MergeError) Error() string {
	if e.Chunk < 0 {
		return fmt.Sprintf("merge final document: %v", e.Err)
	}
	return fmt.Sprintf("merge chunk %d: %v", e.Chunk, e.Err)
}

func (e *MergeError) Unwrap() error { return e.Err }
