// Package ordersstub provides a scripted orders endpoint for tests and local
// runs: a fixed list of orders, a number of failures before recovery, slow
// responses or a malformed payload.
package ordersstub
