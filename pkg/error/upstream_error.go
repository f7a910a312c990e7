package error

import (
	"fmt"
	"net/http"
)

// TransientUpstreamError marks an upstream failure that may succeed on a
// later attempt (5xx, timeouts, dropped connections).
type TransientUpstreamError struct {
	Message string
	Status  int
}

func (err TransientUpstreamError) Error() string {
	if err.Status > 0 {
		return fmt.Sprintf("%s (upstream status %d)", err.Message, err.Status)
	}
	return err.Message
}

func (err TransientUpstreamError) ErrCode() string {
	return "TRANSIENT_UPSTREAM"
}

func (err TransientUpstreamError) StatusCode() int {
	return http.StatusBadGateway
}

// PermanentUpstreamError marks an upstream rejection that retrying will not
// fix (4xx, malformed request, auth failures).
type PermanentUpstreamError struct {
	Message string
	Status  int
}

func (err PermanentUpstreamError) Error() string {
	if err.Status > 0 {
		return fmt.Sprintf("%s (upstream status %d)", err.Message, err.Status)
	}
	return err.Message
}

func (err PermanentUpstreamError) ErrCode() string {
	return "PERMANENT_UPSTREAM"
}

func (err PermanentUpstreamError) StatusCode() int {
	return http.StatusBadGateway
}
