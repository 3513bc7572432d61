package host

import "errors"

// Error taxonomy. Every host implementation maps its transport failures onto
// exactly one of these so callers can decide retry behavior without knowing
// the wire protocol.
var (
	// ErrNotFound indicates the entity does not exist on the host.
	// Never retried: retrying cannot make absent content appear.
	ErrNotFound = errors.New("host: not found")

	// ErrRateLimited indicates the host is throttling. Surfaced to the
	// caller with a clear message; never silently retried indefinitely.
	ErrRateLimited = errors.New("host: rate limited")

	// ErrUnavailable indicates content that exists but cannot be served
	// (typically HTTP 403 from a size exclusion or abuse filter). Bulk
	// callers substitute a placeholder instead of failing the run.
	ErrUnavailable = errors.New("host: content unavailable")
)

// Transient reports whether err is worth retrying with backoff. Not-found
// and rate-limit failures are terminal; everything else (timeouts, 5xx,
// unexpected faults) is considered transient.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrNotFound) &&
		!errors.Is(err, ErrRateLimited) &&
		!errors.Is(err, ErrUnavailable)
}
