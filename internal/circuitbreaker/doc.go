// Package circuitbreaker implements the circuit breaker guarding the orders
// upstream.
//
// A circuit breaker stops calling an upstream that keeps failing and lets a
// single trial request through once a cool-down has passed. It has three
// states:
//
//   - CLOSED: Normal operation, requests pass through
//   - OPEN: Upstream failing, requests rejected without being sent
//   - HALF-OPEN: One probe request in flight, everyone else rejected
//
// Usage:
//
//	cb := circuitbreaker.New(circuitbreaker.Config{FailureThreshold: 5, OpenTimeout: 30 * time.Second})
//	permit, err := cb.BeforeCall()
//	if err != nil {
//	    // circuitbreaker.ErrOpen
//	}
//	orders, err := fetch(ctx)
//	cb.AfterCall(permit, err == nil)
package circuitbreaker
