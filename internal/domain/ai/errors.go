package ai

import "errors"

// Error taxonomy for provider calls. The workflow layer branches on these with
// errors.Is; only ErrOverloaded is recovered locally via fallback content.
var (
	// ErrPayloadTooLarge indicates the attachment exceeded the provider cap.
	// Raised before the first attempt, so no retry budget is consumed.
	ErrPayloadTooLarge = errors.New("attachment payload too large")

	// ErrOverloaded indicates the provider signalled temporary overload and
	// the attempt budget is exhausted.
	ErrOverloaded = errors.New("ai provider overloaded")

	// ErrRateLimited indicates the provider throttled us past the attempt budget.
	ErrRateLimited = errors.New("ai provider rate limited")

	// ErrInvalidRequest indicates the provider rejected the prompt or payload.
	// Never retried.
	ErrInvalidRequest = errors.New("ai provider rejected the request")

	// ErrMalformedResponse indicates a well-formed response without generated
	// content. Retryable like a generic failure.
	ErrMalformedResponse = errors.New("ai provider returned no generated content")

	// ErrExhausted indicates generic failures persisted across all attempts.
	ErrExhausted = errors.New("ai call failed after retries")
)
