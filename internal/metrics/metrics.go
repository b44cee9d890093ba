package metrics

import (
	"sync/atomic"
	"time"
)

// ID names a counter or histogram.
type ID uint16

const (
	RegisterSuccess ID = iota
	RegisterConflict
	LoginSuccess
	LoginFailure
	LoginRateLimited
	LoginTwoFactorChallenge
	TwoFactorSuccess
	TwoFactorFailure
	RefreshSuccess
	RefreshFailure
	RefreshReuseDetected
	SessionCreated
	SessionRevoked
	Logout
	LogoutAll
	EmailVerificationRequest
	EmailVerificationSuccess
	EmailVerificationFailure
	PasswordResetRequest
	PasswordResetSuccess
	PasswordResetFailure
	CodeAttemptsExceeded
	AccountDisabled
	OAuthLoginSuccess
	OAuthLoginFailure
	OAuthAccountCreated
	OAuthAccountLinked
	ValidateFailure
	ValidateLatency
	RefreshLatency
	idCount
)

const (
	BucketCount   = 8
	cacheLineSize = 64
)

type histogram struct {
	buckets [BucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed set of lock-free counters and latency histograms. A nil
// or disabled *Metrics records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [idCount]paddedCounter
	histograms    [idCount]histogram
}

// Snapshot is a point-in-time copy of every counter and histogram. Histogram
// buckets are non-cumulative.
type Snapshot struct {
	Counters   map[ID]uint64
	Histograms map[ID][]uint64
}

// Config toggles collection.
type Config struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

func New(cfg Config) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) Inc(id ID) {
	if m == nil || !m.enabled || id >= idCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d into the histogram id. Only histogram ids are accepted.
func (m *Metrics) Observe(id ID, d time.Duration) {
	if m == nil || !m.enableLatency || !isHistogram(id) {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

func (m *Metrics) Value(id ID) uint64 {
	if m == nil || id >= idCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

func (m *Metrics) Snapshot() Snapshot {
	if m == nil || !m.enabled {
		return Snapshot{
			Counters:   map[ID]uint64{},
			Histograms: map[ID][]uint64{},
		}
	}

	s := Snapshot{
		Counters:   make(map[ID]uint64, int(idCount)),
		Histograms: make(map[ID][]uint64, len(HistogramDefs)),
	}
	for _, def := range CounterDefs {
		s.Counters[def.ID] = atomic.LoadUint64(&m.counters[def.ID].value)
	}

	if m.enableLatency {
		for _, def := range HistogramDefs {
			buckets := make([]uint64, BucketCount)
			for i := range buckets {
				buckets[i] = atomic.LoadUint64(&m.histograms[def.ID].buckets[i])
			}
			s.Histograms[def.ID] = buckets
		}
	}

	return s
}

func isHistogram(id ID) bool {
	return id == ValidateLatency || id == RefreshLatency
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
