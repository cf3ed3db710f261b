package completion

import "fmt"

// NetworkError reports a transport-level failure: DNS, connect, TLS, timeout,
// or a connection dropped while reading the body.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// HTTPError reports a response with a status other than 200.
type HTTPError struct {
	StatusCode int
	Body       string

	// Message is the API's error.message, when the body carried one.
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("http error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("http error %d: %s", e.StatusCode, e.Body)
}

// MalformedResponseError reports a 200 response whose body is not JSON or
// lacks choices[0].message.content.
type MalformedResponseError struct {
	Detail string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed response: %s: %v", e.Detail, e.Err)
	}
	return "malformed response: " + e.Detail
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}
