package metrics

// Metrics collection for tag sends and receives

import (
	"math"
	"sort"
	"sync"
	"time"

	cipErrors "github.com/Bataide/cip-enip-driver/internal/errors"
)

// OperationType represents the type of operation
type OperationType string

const (
	OperationSend    OperationType = "SEND"
	OperationReceive OperationType = "RECEIVE"
)

// DefaultHistory bounds how many metrics a Collector keeps for percentiles.
const DefaultHistory = 10000

// Metric represents a single send or receive
type Metric struct {
	Timestamp time.Time     `json:"timestamp"`
	Operation OperationType `json:"operation"`
	Symbol    string        `json:"symbol"`
	DataType  string        `json:"data_type"`
	Remote    string        `json:"remote,omitempty"`
	Bytes     int           `json:"bytes"`
	Success   bool          `json:"success"`
	RTTMs     float64       `json:"rtt_ms,omitempty"`
	JitterMs  float64       `json:"jitter_ms,omitempty"`
	Status    uint8         `json:"status"`
	ErrorKind string        `json:"error_kind,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// SetError fills the error fields of m from err.
func (m *Metric) SetError(err error) {
	if err == nil {
		return
	}
	m.Error = err.Error()
	if kind := cipErrors.KindOf(err); kind != cipErrors.KindUnknown {
		m.ErrorKind = kind.String()
	}
}

// Collector aggregates metrics. It keeps the most recent DefaultHistory
// entries for percentiles and running totals for everything else.
type Collector struct {
	mu      sync.RWMutex
	history []Metric
	limit   int
	lastRTT float64
	summary *Summary
}

// Summary contains aggregated statistics
type Summary struct {
	TotalOperations int                     `json:"total_operations"`
	Sent            int                     `json:"sent"`
	Received        int                     `json:"received"`
	SuccessfulOps   int                     `json:"successful"`
	FailedOps       int                     `json:"failed"`
	TimeoutCount    int                     `json:"timeouts"`
	TransportErrors int                     `json:"transport_errors"`
	StatusErrors    int                     `json:"status_errors"`
	BytesSent       int                     `json:"bytes_sent"`
	BytesReceived   int                     `json:"bytes_received"`
	MinRTT          float64                 `json:"min_rtt_ms"`
	MaxRTT          float64                 `json:"max_rtt_ms"`
	AvgRTT          float64                 `json:"avg_rtt_ms"`
	P50RTT          float64                 `json:"p50_rtt_ms"`
	P90RTT          float64                 `json:"p90_rtt_ms"`
	P95RTT          float64                 `json:"p95_rtt_ms"`
	P99RTT          float64                 `json:"p99_rtt_ms"`
	AvgJitter       float64                 `json:"avg_jitter_ms"`
	RTTBuckets      map[string]int          `json:"rtt_buckets"`
	BySymbol        map[string]*SymbolStats `json:"by_symbol"`
	ByOperation     map[OperationType]int   `json:"by_operation"`
	rttCount        int
	jitterCount     int
}

// SymbolStats contains statistics for one tag
type SymbolStats struct {
	Count    int       `json:"count"`
	Success  int       `json:"success"`
	Failed   int       `json:"failed"`
	LastSeen time.Time `json:"last_seen"`
	AvgRTT   float64   `json:"avg_rtt_ms"`
	sumRTT   float64
	rttCount int
}

func newSummary() *Summary {
	return &Summary{
		RTTBuckets:  make(map[string]int),
		BySymbol:    make(map[string]*SymbolStats),
		ByOperation: make(map[OperationType]int),
	}
}

// NewCollector creates a collector keeping up to limit metrics of history.
// A limit below 1 uses DefaultHistory.
func NewCollector(limit int) *Collector {
	if limit < 1 {
		limit = DefaultHistory
	}
	return &Collector{limit: limit, summary: newSummary()}
}

// Record records a new metric and returns it as stored. Jitter of a
// successful send is the change in RTT from the previous successful send.
func (c *Collector) Record(m Metric) Metric {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if m.Operation == OperationSend && m.Success && m.RTTMs > 0 {
		if c.lastRTT > 0 {
			m.JitterMs = math.Abs(m.RTTMs - c.lastRTT)
		}
		c.lastRTT = m.RTTMs
	}

	c.history = append(c.history, m)
	if len(c.history) > c.limit {
		c.history = append(c.history[:0], c.history[len(c.history)-c.limit:]...)
	}
	c.summary.add(m)
	return m
}

// Metrics returns a copy of the retained metrics
func (c *Collector) Metrics() []Metric {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Metric, len(c.history))
	copy(out, c.history)
	return out
}

// Summary returns a copy of the aggregated summary with percentiles computed
// over the retained history.
func (c *Collector) Summary() *Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := *c.summary
	s.RTTBuckets = make(map[string]int)
	s.BySymbol = make(map[string]*SymbolStats, len(c.summary.BySymbol))
	s.ByOperation = make(map[OperationType]int, len(c.summary.ByOperation))
	for sym, st := range c.summary.BySymbol {
		cp := *st
		s.BySymbol[sym] = &cp
	}
	for op, n := range c.summary.ByOperation {
		s.ByOperation[op] = n
	}

	rtts := make([]float64, 0, len(c.history))
	for _, m := range c.history {
		if m.Operation == OperationSend && m.Success && m.RTTMs > 0 {
			rtts = append(rtts, m.RTTMs)
			incrementBucket(s.RTTBuckets, m.RTTMs)
		}
	}
	p := computePercentiles(rtts)
	s.P50RTT, s.P90RTT, s.P95RTT, s.P99RTT = p[0], p[1], p[2], p[3]
	return &s
}

func (s *Summary) add(m Metric) {
	s.TotalOperations++
	s.ByOperation[m.Operation]++

	switch m.Operation {
	case OperationSend:
		s.Sent++
		s.BytesSent += m.Bytes
	case OperationReceive:
		s.Received++
		s.BytesReceived += m.Bytes
	}

	if m.Success {
		s.SuccessfulOps++
	} else {
		s.FailedOps++
		switch m.ErrorKind {
		case cipErrors.KindTimeout.String():
			s.TimeoutCount++
		case cipErrors.KindTransport.String():
			s.TransportErrors++
		}
		if m.Status != 0 {
			s.StatusErrors++
		}
	}

	if m.Operation == OperationSend && m.Success && m.RTTMs > 0 {
		if s.MinRTT == 0 || m.RTTMs < s.MinRTT {
			s.MinRTT = m.RTTMs
		}
		if m.RTTMs > s.MaxRTT {
			s.MaxRTT = m.RTTMs
		}
		s.rttCount++
		s.AvgRTT += (m.RTTMs - s.AvgRTT) / float64(s.rttCount)
	}
	if m.JitterMs > 0 {
		s.jitterCount++
		s.AvgJitter += (m.JitterMs - s.AvgJitter) / float64(s.jitterCount)
	}

	if m.Symbol == "" {
		return
	}
	st, ok := s.BySymbol[m.Symbol]
	if !ok {
		st = &SymbolStats{}
		s.BySymbol[m.Symbol] = st
	}
	st.Count++
	st.LastSeen = m.Timestamp
	if m.Success {
		st.Success++
	} else {
		st.Failed++
	}
	if m.RTTMs > 0 {
		st.rttCount++
		st.sumRTT += m.RTTMs
		st.AvgRTT = st.sumRTT / float64(st.rttCount)
	}
}

func incrementBucket(buckets map[string]int, value float64) {
	switch {
	case value < 1:
		buckets["lt_1ms"]++
	case value < 5:
		buckets["1_5ms"]++
	case value < 10:
		buckets["5_10ms"]++
	case value < 50:
		buckets["10_50ms"]++
	case value < 100:
		buckets["50_100ms"]++
	case value < 500:
		buckets["100_500ms"]++
	default:
		buckets["gt_500ms"]++
	}
}

func computePercentiles(values []float64) [4]float64 {
	var result [4]float64
	if len(values) == 0 {
		return result
	}
	sort.Float64s(values)
	for i, p := range []float64{0.50, 0.90, 0.95, 0.99} {
		result[i] = percentile(values, p)
	}
	return result
}

// percentile uses the nearest-rank method on sorted values.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}
