package fetcher

import (
	"context"
	"fmt"
	"io"

	"github.com/rotisserie/eris"
)

// ErrRateLimited is returned when the upstream answered 429 or the fetcher
// is cooling down after one.
var ErrRateLimited = eris.New("fetcher: upstream rate limited")

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}

// StatusError reports a non-200 response that was not retried.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetcher: unexpected status %d from %s", e.StatusCode, e.URL)
}
