package ports

import "net/http"

// HTTPClient defines the interface for making HTTP requests.
// This allows mocking gateway calls in tests and swapping implementations.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}
