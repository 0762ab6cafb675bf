package override

import (
	"context"
	"time"

	"github.com/ctrlpath/evalcore/internal/transport"
)

// DefaultURLTimeout and MaxURLTimeout bound override URL fetches, tighter
// than the artifact loader's own defaults since overrides are polled
// repeatedly.
const (
	DefaultURLTimeout = 10 * time.Second
	MaxURLTimeout      = 1 * time.Minute
	// DefaultPollInterval is the resolver's default polling cadence.
	DefaultPollInterval = 3 * time.Second
)

// LoadFile reads and parses an override file from a local path, applying
// the same path-safety gates as the artifact loader.
func LoadFile(path string, allowedDirectory string) (*State, error) {
	buf, err := transport.LoadFile(path, transport.FileOptions{
		AllowedDirectory: allowedDirectory,
		MaxBytes:         MaxFileBytes,
	})
	if err != nil {
		return nil, err
	}
	state, err := Parse(buf)
	if err != nil {
		return nil, err
	}
	state.LoadedAt = time.Now().UTC()
	return state, nil
}

// LoadURL fetches and parses an override file over HTTP(S), sending
// If-None-Match when prevETag is non-empty. A 304 response reports
// notModified=true and a nil State; the caller should keep serving its
// previous snapshot.
func LoadURL(ctx context.Context, url, prevETag string, timeout time.Duration) (state *State, notModified bool, err error) {
	if timeout <= 0 {
		timeout = DefaultURLTimeout
	}
	if timeout > MaxURLTimeout {
		timeout = MaxURLTimeout
	}
	res, err := transport.LoadURL(ctx, url, transport.URLOptions{
		Timeout:     timeout,
		MaxBytes:    MaxFileBytes,
		IfNoneMatch: prevETag,
	})
	if err != nil {
		return nil, false, err
	}
	if res.NotModified {
		return nil, true, nil
	}
	parsed, err := Parse(res.Body)
	if err != nil {
		return nil, false, err
	}
	parsed.ETag = res.ETag
	parsed.LoadedAt = time.Now().UTC()
	return parsed, false, nil
}
