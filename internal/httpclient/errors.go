package httpclient

import "fmt"

// StatusError is returned when a request completes with a status of 400 or
// above. The client never retries; callers decide what each status means.
type StatusError struct {
	Status int
	URL    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %q", e.Status, e.URL)
}

// NetworkError wraps transport-level failures (DNS, TLS, connection resets)
// so callers can tell them apart from upstream status errors.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("request to %q failed: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// DecodeError wraps failures to parse a response body. Providers reuse it
// for CSV and unit conversion problems in payloads they fetched raw.
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding response from %q: %v", e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
