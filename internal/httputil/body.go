package httputil

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrBodyTooLarge is returned when a request body exceeds the configured limit.
var ErrBodyTooLarge = errors.New("request body too large")

// ReadLimitedBody reads at most max bytes of the request body. The raw bytes
// are returned unmodified so callers can verify signatures over them.
func ReadLimitedBody(r *http.Request, max int64) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	if max > 0 && r.ContentLength > max {
		return nil, ErrBodyTooLarge
	}

	reader := io.Reader(r.Body)
	if max > 0 {
		reader = io.LimitReader(r.Body, max+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	if max > 0 && int64(len(body)) > max {
		return nil, ErrBodyTooLarge
	}
	return body, nil
}
