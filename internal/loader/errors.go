package loader

import "fmt"

// ErrorCode classifies the errors the loader can attach to a job.
type ErrorCode string

const (
	// ErrCycle is returned by Schedule when the batch would introduce a
	// dependency cycle. Nothing from the batch enters the loader.
	ErrCycle ErrorCode = "CYCLE"
	// ErrFailed is stored on a job whose function returned an error or panicked.
	ErrFailed ErrorCode = "FAILED"
	// ErrCanceled is stored on a job that was removed while pending, or whose
	// dependency reached FAILED or CANCELED.
	ErrCanceled ErrorCode = "CANCELED"
)

// Error is the structured error carried by terminal jobs and returned from
// Schedule and Job.Wait.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}
