package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNonJSONResponse is returned by SafeParseJSON when the response does
// not declare a JSON content type, typically an HTML error page.
var ErrNonJSONResponse = errors.New("remote: non-JSON response")

// StatusError reports a definitive non-2xx response.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("remote: %s %s: %d %s: %s", e.Method, e.URL, e.Code, http.StatusText(e.Code), e.Body)
	}
	return fmt.Sprintf("remote: %s %s: %d %s", e.Method, e.URL, e.Code, http.StatusText(e.Code))
}

// ClientError reports whether the server rejected the request itself (4xx).
func (e *StatusError) ClientError() bool {
	return e.Code >= 400 && e.Code < 500
}

// IsClientError reports whether err wraps a 4xx StatusError.
func IsClientError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.ClientError()
}

// IsTransient reports whether err is worth retrying later: anything that is
// not a definitive client error.
func IsTransient(err error) bool {
	return err != nil && !IsClientError(err) && !errors.Is(err, ErrNonJSONResponse)
}
