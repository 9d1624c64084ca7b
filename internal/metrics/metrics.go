package metrics

import (
	"sort"
	"sync"
	"time"
)

const maxSamples = 1000

type Metrics struct {
	mutex          sync.RWMutex
	attempts       map[string]int64
	statusCodes    map[int]int64
	attemptTimes   []time.Duration
	calls          map[string]map[string]int64
	callTimes      map[string][]time.Duration
	retries        int64
	retryDelay     time.Duration
	fallbacks      int64
	rejections     int64
	breakerState   string
	breakerChanged time.Time
	breakerMoves   map[string]int64
	startTime      time.Time
}

type Snapshot struct {
	Strategy   string                    `json:"strategy"`
	Uptime     time.Duration             `json:"uptime"`
	Upstream   UpstreamMetrics           `json:"upstream"`
	Operations map[string]OperationStats `json:"operations"`
	Retries    RetryMetrics              `json:"retries"`
	Fallbacks  int64                     `json:"fallbacks_served"`
	Breaker    BreakerMetrics            `json:"breaker"`
}

type UpstreamMetrics struct {
	Attempts    int64            `json:"attempts"`
	Outcomes    map[string]int64 `json:"outcomes"`
	StatusCodes map[int]int64    `json:"status_codes"`
	Latency     LatencyStats     `json:"latency"`
}

type OperationStats struct {
	Calls    int64            `json:"calls"`
	Outcomes map[string]int64 `json:"outcomes"`
	Latency  LatencyStats     `json:"latency"`
}

type LatencyStats struct {
	Avg time.Duration `json:"avg"`
	P50 time.Duration `json:"p50"`
	P95 time.Duration `json:"p95"`
	P99 time.Duration `json:"p99"`
}

type RetryMetrics struct {
	Scheduled  int64         `json:"scheduled"`
	TotalDelay time.Duration `json:"total_delay"`
}

type BreakerMetrics struct {
	State       string           `json:"state"`
	Since       time.Time        `json:"since,omitempty"`
	Transitions map[string]int64 `json:"transitions"`
	Rejections  int64            `json:"rejections"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		attempts:     make(map[string]int64),
		statusCodes:  make(map[int]int64),
		calls:        make(map[string]map[string]int64),
		callTimes:    make(map[string][]time.Duration),
		breakerMoves: make(map[string]int64),
		breakerState: "CLOSED",
		startTime:    time.Now(),
	}
}

// RecordAttempt counts one upstream request. A zero status means no HTTP
// response was received.
func (m *Metrics) RecordAttempt(outcome string, duration time.Duration, statusCode int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.attempts[outcome]++
	m.attemptTimes = appendSample(m.attemptTimes, duration)

	if statusCode != 0 {
		m.statusCodes[statusCode]++
	}
}

func (m *Metrics) RecordCall(operation, outcome string, duration time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.calls[operation] == nil {
		m.calls[operation] = make(map[string]int64)
	}
	m.calls[operation][outcome]++
	m.callTimes[operation] = appendSample(m.callTimes[operation], duration)
}

func (m *Metrics) RecordRetry(delay time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.retries++
	m.retryDelay += delay
}

func (m *Metrics) RecordFallback() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.fallbacks++
}

func (m *Metrics) RecordRejection() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.rejections++
}

func (m *Metrics) RecordBreakerTransition(state string, at time.Time) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.breakerState = state
	m.breakerChanged = at
	m.breakerMoves[state]++
}

func (m *Metrics) Snapshot(strategy string) Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Strategy:   strategy,
		Uptime:     time.Since(m.startTime),
		Operations: make(map[string]OperationStats, len(m.calls)),
		Upstream: UpstreamMetrics{
			Outcomes:    copyCounts(m.attempts),
			StatusCodes: make(map[int]int64, len(m.statusCodes)),
			Latency:     latencyStats(m.attemptTimes),
		},
		Retries: RetryMetrics{
			Scheduled:  m.retries,
			TotalDelay: m.retryDelay,
		},
		Fallbacks: m.fallbacks,
		Breaker: BreakerMetrics{
			State:       m.breakerState,
			Since:       m.breakerChanged,
			Transitions: copyCounts(m.breakerMoves),
			Rejections:  m.rejections,
		},
	}

	for _, count := range m.attempts {
		snap.Upstream.Attempts += count
	}
	for code, count := range m.statusCodes {
		snap.Upstream.StatusCodes[code] = count
	}

	for operation, outcomes := range m.calls {
		stats := OperationStats{
			Outcomes: copyCounts(outcomes),
			Latency:  latencyStats(m.callTimes[operation]),
		}
		for _, count := range outcomes {
			stats.Calls += count
		}
		snap.Operations[operation] = stats
	}

	return snap
}

func appendSample(samples []time.Duration, d time.Duration) []time.Duration {
	samples = append(samples, d)
	if len(samples) > maxSamples {
		samples = samples[1:]
	}
	return samples
}

func copyCounts(src map[string]int64) map[string]int64 {
	dst := make(map[string]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func latencyStats(durations []time.Duration) LatencyStats {
	if len(durations) == 0 {
		return LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	return LatencyStats{
		Avg: average(sorted),
		P50: percentile(sorted, 0.50),
		P95: percentile(sorted, 0.95),
		P99: percentile(sorted, 0.99),
	}
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
