// Package failure classifies the ways fetching orders can fail.
//
// Transport outcomes are Network, Server (non-200 status) and Decode failures.
// The resilience wrappers add Timeout, MaxRetries and CircuitOpen. Every
// classified failure is an *Error and can be matched by kind:
//
//	if errors.Is(err, failure.ErrCircuitOpen) {
//	    // serve something else
//	}
//
// Only network failures and 5xx responses are transient.
package failure
