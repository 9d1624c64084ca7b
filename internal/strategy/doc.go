// Package strategy defines how the service fetches orders and implements
// the available modes on top of the resilient fetcher:
//
//   - plain: A single attempt, failures surface as is
//   - fallback: A single attempt, failures answered with the fallback list
//   - retry: Bounded retries with exponential backoff
//   - timeout: A single attempt bound by a deadline
//   - circuit-breaker: A single attempt guarded by the circuit breaker
//   - guarded: Retries inside the circuit breaker under one deadline
//   - layered: guarded, with the fallback list as the last resort
package strategy
