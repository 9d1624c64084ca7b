// Package fetcher implements the resilient orders fetcher.
//
// A ResilientFetcher wraps one Transport and offers five ways to fetch:
// a plain attempt, an attempt with a static fallback, bounded retries with
// exponential backoff, an attempt bound by a deadline and an attempt guarded
// by a circuit breaker. Each behaviour is also available as a decorator over
// AttemptFunc so they can be layered, for example a retry sequence inside a
// circuit breaker with an overall deadline.
package fetcher
