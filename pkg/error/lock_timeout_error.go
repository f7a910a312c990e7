package error

import "net/http"

// LockTimeoutError signals that a distributed lock could not be acquired
// within the allowed wait window.
type LockTimeoutError string

func (err LockTimeoutError) Error() string {
	return string(err)
}

func (err LockTimeoutError) ErrCode() string {
	return "LOCK_TIMEOUT"
}

func (err LockTimeoutError) StatusCode() int {
	return http.StatusConflict
}
