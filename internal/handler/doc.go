// Package handler implements the HTTP surface of the orders gateway.
// It serves the selected strategy's orders list and maps fetch failures to
// HTTP status codes.
package handler
