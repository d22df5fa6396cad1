package domain

import "errors"

// Error taxonomy for the fetch pipeline. Provider-level failures are routine
// and travel inside FetchResult values; none of these ever crosses the
// orchestrator boundary as a raised error.
var (
	// ErrProviderUnavailable marks a recoverable upstream failure that moves
	// the fetcher on to the next provider in the chain.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrAllProvidersExhausted means the cache missed and every provider in
	// the chain failed or returned nothing usable.
	ErrAllProvidersExhausted = errors.New("all providers exhausted")

	// ErrTimeout marks a fetch still pending when the orchestrator's global
	// deadline expired.
	ErrTimeout = errors.New("fetch timed out")

	// ErrClassificationUnavailable means the external classifier failed; the
	// router degrades to its static result instead of propagating this.
	ErrClassificationUnavailable = errors.New("classification unavailable")

	// ErrMalformedPayload marks an upstream response that could not be
	// decoded. It is handled exactly like ErrProviderUnavailable and the
	// payload is never cached.
	ErrMalformedPayload = errors.New("malformed payload")
)
