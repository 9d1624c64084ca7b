package backoff

import (
	"math"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config describes an exponential backoff schedule without jitter.
type Config struct {
	InitialDelay time.Duration `mapstructure:"initial_delay" json:"initial_delay"`
	Factor       float64       `mapstructure:"factor" json:"factor"`
	MaxDelay     time.Duration `mapstructure:"max_delay" json:"max_delay"`
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.InitialDelay,
			validation.Required,
			validation.Min(time.Nanosecond),
		),
		validation.Field(&c.Factor,
			validation.Required,
			validation.Min(1.0),
		),
		validation.Field(&c.MaxDelay,
			validation.Required,
			validation.Min(c.InitialDelay).Error("must be no less than initial_delay"),
		),
	)
}

// DelayFor returns the wait before the request that follows failed attempt
// number attempt (0-indexed): min(InitialDelay * Factor^attempt, MaxDelay).
// Negative attempts are treated as 0. The result never exceeds MaxDelay, even
// when the exponent is large enough to overflow.
func DelayFor(attempt int, cfg Config) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Factor, float64(attempt))
	if math.IsNaN(delay) || math.IsInf(delay, 0) || delay >= float64(cfg.MaxDelay) {
		return cfg.MaxDelay
	}
	if delay < 0 {
		return 0
	}

	return time.Duration(delay)
}

// Schedule lists the delays a retry loop with maxRetries retries would wait.
func Schedule(maxRetries int, cfg Config) []time.Duration {
	if maxRetries <= 0 {
		return nil
	}

	delays := make([]time.Duration, maxRetries)
	for attempt := range delays {
		delays[attempt] = DelayFor(attempt, cfg)
	}

	return delays
}
