package extraction

import "errors"

// Failure modes surfaced to the orchestrator. Each is distinct so callers
// can choose a user-facing message with errors.Is.
var (
	// ErrMissingCredential means there is no way to call the backing service.
	ErrMissingCredential = errors.New("extraction credential not configured")

	// ErrEncodingFailed means the image could not be serialized for the service.
	ErrEncodingFailed = errors.New("encoding receipt image failed")

	// ErrServiceUnavailable means the service call failed or returned a
	// non-success response.
	ErrServiceUnavailable = errors.New("extraction service unavailable")

	// ErrMalformedResult means the response did not decode into the
	// required ParsedReceipt shape. Non-fatal to the app: the user can
	// still enter the receipt manually.
	ErrMalformedResult = errors.New("extraction result malformed")
)
