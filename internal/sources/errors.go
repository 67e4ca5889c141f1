package sources

import "errors"

// Error kinds an adapter may surface. Every error is captured locally by
// the adapter and returned as Diagnostics data, never thrown across the
// Fetch boundary; only Diagnostics.Errors accumulates these.
var (
	// ErrTransientUpstream covers HTTP 5xx, timeouts and connection
	// resets. Retried twice with linear back-off before being recorded.
	ErrTransientUpstream = errors.New("sources: transient upstream error")

	// ErrQualityFiltered marks a satellite pixel that failed the
	// NASA-compliant filters (quality flag, cloud fraction, fill value,
	// sign). The measurement is recorded for auditing but never used
	// downstream.
	ErrQualityFiltered = errors.New("sources: measurement quality filtered")

	// ErrNoDataInRange means a ground network returned no stations
	// within the maximum search radius, or a grid search was empty.
	ErrNoDataInRange = errors.New("sources: no data in search range")

	// ErrUnitUnsupported means a source reported units the conversion
	// table doesn't cover; the value is dropped.
	ErrUnitUnsupported = errors.New("sources: unsupported units")
)
