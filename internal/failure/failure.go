package failure

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindServer
	KindDecode
	KindTimeout
	KindMaxRetries
	KindCircuitOpen
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindServer:
		return "server"
	case KindDecode:
		return "decode"
	case KindTimeout:
		return "timeout"
	case KindMaxRetries:
		return "max_retries"
	case KindCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

// Error is a classified fetch failure.
//
// Status is set for KindServer, Attempts for KindMaxRetries, Timeout for
// KindTimeout and RetryAfter for KindCircuitOpen. Err carries the underlying
// cause when there is one.
type Error struct {
	Kind       Kind
	Status     int
	Attempts   int
	Timeout    time.Duration
	RetryAfter time.Duration
	Err        error
}

var (
	ErrNetwork     = &Error{Kind: KindNetwork}
	ErrServer      = &Error{Kind: KindServer}
	ErrDecode      = &Error{Kind: KindDecode}
	ErrTimeout     = &Error{Kind: KindTimeout}
	ErrMaxRetries  = &Error{Kind: KindMaxRetries}
	ErrCircuitOpen = &Error{Kind: KindCircuitOpen}
)

func (e *Error) Error() string {
	switch e.Kind {
	case KindServer:
		if e.Status == 0 {
			return "server error"
		}
		return fmt.Sprintf("server error: status %d %s", e.Status, http.StatusText(e.Status))
	case KindMaxRetries:
		if e.Err == nil {
			return "max retries exceeded"
		}
		return fmt.Sprintf("max retries exceeded after %d attempts: %v", e.Attempts, e.Err)
	case KindTimeout:
		if e.Timeout == 0 {
			return "timeout exceeded"
		}
		return fmt.Sprintf("timeout exceeded after %s", e.Timeout)
	case KindCircuitOpen:
		return "circuit breaker is open"
	}

	if e.Err == nil {
		return e.Kind.String() + " error"
	}
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches by kind, so errors.Is(err, ErrServer) holds for every status.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Status == 0 || t.Status == e.Status)
}

// Transient reports whether repeating the request may succeed.
func (e *Error) Transient() bool {
	switch e.Kind {
	case KindNetwork:
		return true
	case KindServer:
		return e.Status >= http.StatusInternalServerError
	default:
		return false
	}
}

func Network(err error) *Error {
	return &Error{Kind: KindNetwork, Err: err}
}

func Server(status int) *Error {
	return &Error{Kind: KindServer, Status: status}
}

func Decode(err error) *Error {
	return &Error{Kind: KindDecode, Err: err}
}

func Timeout(after time.Duration) *Error {
	return &Error{Kind: KindTimeout, Timeout: after}
}

// MaxRetries wraps the cause of the final failed attempt.
func MaxRetries(attempts int, last error) *Error {
	return &Error{Kind: KindMaxRetries, Attempts: attempts, Err: last}
}

func CircuitOpen(retryAfter time.Duration) *Error {
	return &Error{Kind: KindCircuitOpen, RetryAfter: retryAfter}
}

// KindOf returns the kind of the outermost classified error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// IsTransient reports whether err is a network failure or a 5xx response.
func IsTransient(err error) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Transient()
	}
	return false
}

// IsClassified reports whether err carries a fetch failure classification.
// Context cancellation and programming errors are not classified.
func IsClassified(err error) bool {
	return KindOf(err) != KindUnknown
}
