// Package backoff computes exponential retry delays.
//
// Delays grow geometrically from InitialDelay by Factor and are capped at
// MaxDelay:
//
//	cfg := backoff.Config{InitialDelay: 100 * time.Millisecond, Factor: 2, MaxDelay: time.Second}
//	backoff.DelayFor(0, cfg) // 100ms
//	backoff.DelayFor(3, cfg) // 800ms
//	backoff.DelayFor(9, cfg) // 1s
package backoff
