package metrics

// Metrics output (CSV/JSON lines) and summary formatting

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

var csvHeader = []string{
	"timestamp",
	"operation",
	"symbol",
	"data_type",
	"remote",
	"bytes",
	"success",
	"rtt_ms",
	"jitter_ms",
	"status",
	"error_kind",
	"error",
}

// Writer handles writing metrics to files. The JSON file holds one object
// per line.
type Writer struct {
	mu        sync.Mutex
	csvFile   *os.File
	csvWriter *csv.Writer
	jsonFile  *os.File
	jsonEnc   *json.Encoder
}

// NewWriter creates a new metrics writer. Empty paths disable that output.
func NewWriter(csvPath, jsonPath string) (*Writer, error) {
	w := &Writer{}

	if csvPath != "" {
		file, err := os.Create(csvPath)
		if err != nil {
			return nil, fmt.Errorf("create CSV file: %w", err)
		}
		w.csvFile = file
		w.csvWriter = csv.NewWriter(file)
		if err := w.csvWriter.Write(csvHeader); err != nil {
			file.Close()
			return nil, fmt.Errorf("write CSV header: %w", err)
		}
		w.csvWriter.Flush()
	}

	if jsonPath != "" {
		file, err := os.Create(jsonPath)
		if err != nil {
			if w.csvFile != nil {
				w.csvFile.Close()
			}
			return nil, fmt.Errorf("create JSON file: %w", err)
		}
		w.jsonFile = file
		w.jsonEnc = json.NewEncoder(file)
	}

	return w, nil
}

// WriteMetric writes a single metric
func (w *Writer) WriteMetric(m Metric) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.csvWriter != nil {
		record := []string{
			m.Timestamp.Format(time.RFC3339Nano),
			string(m.Operation),
			m.Symbol,
			m.DataType,
			m.Remote,
			strconv.Itoa(m.Bytes),
			strconv.FormatBool(m.Success),
			formatMs(m.RTTMs),
			formatMs(m.JitterMs),
			strconv.Itoa(int(m.Status)),
			m.ErrorKind,
			m.Error,
		}
		if err := w.csvWriter.Write(record); err != nil {
			return fmt.Errorf("write CSV record: %w", err)
		}
		w.csvWriter.Flush()
		if err := w.csvWriter.Error(); err != nil {
			return fmt.Errorf("flush CSV: %w", err)
		}
	}

	if w.jsonEnc != nil {
		if err := w.jsonEnc.Encode(m); err != nil {
			return fmt.Errorf("write JSON: %w", err)
		}
	}

	return nil
}

// Close closes the writer and flushes all data
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var errs []error
	if w.csvWriter != nil {
		w.csvWriter.Flush()
		w.csvWriter = nil
	}
	if w.csvFile != nil {
		if err := w.csvFile.Close(); err != nil {
			errs = append(errs, err)
		}
		w.csvFile = nil
	}
	if w.jsonFile != nil {
		if err := w.jsonFile.Close(); err != nil {
			errs = append(errs, err)
		}
		w.jsonFile = nil
		w.jsonEnc = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close writer: %v", errs)
	}
	return nil
}

// formatMs formats a millisecond value for CSV (empty string if 0)
func formatMs(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// FormatSummary formats a summary for human-readable output
func FormatSummary(summary *Summary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Total Operations: %d (%d sent, %d received)\n", summary.TotalOperations, summary.Sent, summary.Received)
	if summary.TotalOperations > 0 {
		fmt.Fprintf(&b, "Successful: %d (%.1f%%)\n", summary.SuccessfulOps,
			float64(summary.SuccessfulOps)/float64(summary.TotalOperations)*100)
		fmt.Fprintf(&b, "Failed: %d (%.1f%%)\n", summary.FailedOps,
			float64(summary.FailedOps)/float64(summary.TotalOperations)*100)
	}
	if summary.TimeoutCount > 0 {
		fmt.Fprintf(&b, "Timeouts: %d\n", summary.TimeoutCount)
	}
	if summary.TransportErrors > 0 {
		fmt.Fprintf(&b, "Transport Errors: %d\n", summary.TransportErrors)
	}
	if summary.StatusErrors > 0 {
		fmt.Fprintf(&b, "Error Statuses: %d\n", summary.StatusErrors)
	}
	fmt.Fprintf(&b, "Bytes: %d sent, %d received\n", summary.BytesSent, summary.BytesReceived)

	if summary.MaxRTT > 0 {
		b.WriteString("\nSend RTT:\n")
		fmt.Fprintf(&b, "  Min: %.3f ms\n", summary.MinRTT)
		fmt.Fprintf(&b, "  Max: %.3f ms\n", summary.MaxRTT)
		fmt.Fprintf(&b, "  Avg: %.3f ms\n", summary.AvgRTT)
		fmt.Fprintf(&b, "  P50/P90/P95/P99: %.3f/%.3f/%.3f/%.3f ms\n",
			summary.P50RTT, summary.P90RTT, summary.P95RTT, summary.P99RTT)
		if summary.AvgJitter > 0 {
			fmt.Fprintf(&b, "  Jitter avg: %.3f ms\n", summary.AvgJitter)
		}
		if len(summary.RTTBuckets) > 0 {
			fmt.Fprintf(&b, "  Buckets: <1ms=%d 1-5ms=%d 5-10ms=%d 10-50ms=%d 50-100ms=%d 100-500ms=%d >500ms=%d\n",
				summary.RTTBuckets["lt_1ms"],
				summary.RTTBuckets["1_5ms"],
				summary.RTTBuckets["5_10ms"],
				summary.RTTBuckets["10_50ms"],
				summary.RTTBuckets["50_100ms"],
				summary.RTTBuckets["100_500ms"],
				summary.RTTBuckets["gt_500ms"],
			)
		}
	}

	if len(summary.BySymbol) > 0 {
		b.WriteString("\nPer-Tag Statistics:\n")
		symbols := make([]string, 0, len(summary.BySymbol))
		for sym := range summary.BySymbol {
			symbols = append(symbols, sym)
		}
		sort.Strings(symbols)
		for _, sym := range symbols {
			st := summary.BySymbol[sym]
			fmt.Fprintf(&b, "  %s: %d ops (%d success, %d failed)", sym, st.Count, st.Success, st.Failed)
			if st.AvgRTT > 0 {
				fmt.Fprintf(&b, " - RTT avg=%.3fms", st.AvgRTT)
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}
