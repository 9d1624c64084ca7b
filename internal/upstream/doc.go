// Package upstream implements the HTTP transport to the orders endpoint.
// Each Attempt is exactly one GET request, tagged with a fresh request id,
// whose outcome is classified for the resilience layer. The client also keeps
// an exponentially weighted average of upstream response times.
package upstream
