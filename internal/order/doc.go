// Package order defines the order records returned by the upstream orders
// endpoint and the decoding rules applied to its JSON payload.
package order
