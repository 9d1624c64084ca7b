package circuitbreaker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ErrOpen is returned by BeforeCall when the call must not reach the upstream.
var ErrOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Blocking requests
	StateHalfOpen              // Testing with one request
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "CLOSED":
		*s = StateClosed
	case "OPEN":
		*s = StateOpen
	case "HALF-OPEN":
		*s = StateHalfOpen
	default:
		return fmt.Errorf("unknown circuit breaker state %q", text)
	}
	return nil
}

type Config struct {
	FailureThreshold int           `mapstructure:"failure_threshold" json:"failure_threshold"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout" json:"open_timeout"`
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.FailureThreshold, validation.Required, validation.Min(1)),
		validation.Field(&c.OpenTimeout, validation.Required, validation.Min(time.Nanosecond)),
	)
}

// Permit is handed out by BeforeCall and must be returned through exactly one
// of AfterCall or Release.
type Permit struct {
	generation uint64
	probe      bool
}

// Probe reports whether the permit is the single half-open trial call.
func (p Permit) Probe() bool {
	return p.probe
}

type Snapshot struct {
	State               State     `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastTransition      time.Time `json:"last_transition"`
	Config              Config    `json:"config"`
}

type Option func(*CircuitBreaker)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(cb *CircuitBreaker) {
		cb.now = now
	}
}

// WithStateChange registers a callback invoked after every transition,
// outside the breaker's lock.
func WithStateChange(fn func(from, to State)) Option {
	return func(cb *CircuitBreaker) {
		cb.onStateChange = fn
	}
}

type CircuitBreaker struct {
	mutex          sync.Mutex
	state          State
	failures       int
	lastTransition time.Time
	generation     uint64
	probeInFlight  bool
	config         Config
	now            func() time.Time
	onStateChange  func(from, to State)
}

func New(config Config, opts ...Option) *CircuitBreaker {
	cb := &CircuitBreaker{
		state:  StateClosed,
		config: config,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(cb)
	}
	cb.lastTransition = cb.now()

	return cb
}

// BeforeCall decides whether a call may proceed. It never blocks.
//
// While open and before OpenTimeout has elapsed since the last transition,
// it returns ErrOpen. The first call after that moves the breaker to
// half-open and receives the probe permit; other calls are rejected until the
// probe's outcome is recorded.
func (cb *CircuitBreaker) BeforeCall() (Permit, error) {
	cb.mutex.Lock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastTransition) < cb.config.OpenTimeout {
			cb.mutex.Unlock()
			return Permit{}, ErrOpen
		}
		from := cb.transition(StateHalfOpen)
		cb.probeInFlight = true
		permit := Permit{generation: cb.generation, probe: true}
		cb.mutex.Unlock()

		cb.notify(from, StateHalfOpen)
		return permit, nil
	case StateHalfOpen:
		if cb.probeInFlight {
			cb.mutex.Unlock()
			return Permit{}, ErrOpen
		}
		cb.probeInFlight = true
		permit := Permit{generation: cb.generation, probe: true}
		cb.mutex.Unlock()
		return permit, nil
	default:
		permit := Permit{generation: cb.generation}
		cb.mutex.Unlock()
		return permit, nil
	}
}

// AfterCall records the outcome of a permitted call. Outcomes of permits
// issued before the latest transition are ignored.
func (cb *CircuitBreaker) AfterCall(permit Permit, success bool) {
	cb.mutex.Lock()

	if permit.generation != cb.generation {
		cb.mutex.Unlock()
		return
	}

	var from, to State
	changed := false

	switch cb.state {
	case StateClosed:
		if success {
			cb.failures = 0
			break
		}
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			from, to, changed = cb.transition(StateOpen), StateOpen, true
		}
	case StateHalfOpen:
		if !permit.probe {
			break
		}
		cb.probeInFlight = false
		if success {
			cb.failures = 0
			from, to, changed = cb.transition(StateClosed), StateClosed, true
		} else {
			cb.failures++
			from, to, changed = cb.transition(StateOpen), StateOpen, true
		}
	}

	cb.mutex.Unlock()

	if changed {
		cb.notify(from, to)
	}
}

// Release returns a permit whose call was abandoned without an outcome.
func (cb *CircuitBreaker) Release(permit Permit) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if permit.probe && permit.generation == cb.generation && cb.state == StateHalfOpen {
		cb.probeInFlight = false
	}
}

// Reconfigure swaps the thresholds used by subsequent decisions. The current
// state and failure count are kept.
func (cb *CircuitBreaker) Reconfigure(config Config) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.config = config
}

func (cb *CircuitBreaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

// RetryAfter is how long until an open breaker admits a probe.
func (cb *CircuitBreaker) RetryAfter() time.Duration {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if cb.state != StateOpen {
		return 0
	}
	remaining := cb.config.OpenTimeout - cb.now().Sub(cb.lastTransition)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	return Snapshot{
		State:               cb.state,
		ConsecutiveFailures: cb.failures,
		LastTransition:      cb.lastTransition,
		Config:              cb.config,
	}
}

// transition must be called with the lock held. It returns the previous state.
func (cb *CircuitBreaker) transition(to State) State {
	from := cb.state
	cb.state = to
	cb.lastTransition = cb.now()
	cb.generation++
	if to != StateHalfOpen {
		cb.probeInFlight = false
	}
	return from
}

func (cb *CircuitBreaker) notify(from, to State) {
	if cb.onStateChange != nil {
		cb.onStateChange(from, to)
	}
}
