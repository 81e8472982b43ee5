// Package throttle paces and retries outbound calls against rate-limited remote services.
//
// # Pacing
//
// [Pacer] enforces a minimum interval between consecutive calls using a [rate.Limiter] with a burst of one.
// Reservations are taken at the moment a call is released, so the interval is measured from call issuance:
// a call that fails fast does not let the next call through early, and a slow call does not delay the next
// one beyond the interval. An optional random jitter is slept before the reservation is taken.
//
// # Retries
//
// [Policy] is an explicit retry schedule (attempt budget, exponential backoff bounds, retryable-error
// predicate). Errors that carry a server-provided delay via RetryAfter() stretch the next backoff.
//
// Both types take a [Clock] so tests can observe elapsed time without sleeping.
package throttle
