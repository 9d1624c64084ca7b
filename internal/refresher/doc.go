// Package refresher keeps a last-known-good copy of the orders list.
// A cron schedule drives periodic fetches into a Store; failed refreshes
// leave the previous list in place.
package refresher
