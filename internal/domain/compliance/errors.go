package compliance

import "errors"

var (
	// ErrNetwork wraps failures of the analysis or building collaborators.
	ErrNetwork = errors.New("network error")

	// ErrBuildingUnavailable means the building lookup did not allow loading to proceed.
	ErrBuildingUnavailable = errors.New("building unavailable")

	// ErrNormalization indicates the payload shape was not recognized.
	ErrNormalization = errors.New("normalization failed")

	// ErrMapping indicates a recognized payload without the required fields.
	ErrMapping = errors.New("mapping failed")

	// ErrCache is logged by the cache and never returned past it.
	ErrCache = errors.New("cache error")
)

// ErrQuotaExceeded indicates the AI provider returned a quota/limit error (HTTP 429 or similar).
var ErrQuotaExceeded = errors.New("ai quota exceeded")
