// Package artifact lays out the output directory of an endpoint run.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Bataide/cip-enip-driver/internal/metrics"
)

// RunMetadata describes one run of the endpoint. It is written to run.json.
type RunMetadata struct {
	RunID     string    `json:"run_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  string    `json:"duration"`

	ListenAddr string `json:"listen_addr,omitempty"`
	RemoteAddr string `json:"remote_addr,omitempty"`
	ConfigPath string `json:"config_path,omitempty"`

	Stats    RunStats `json:"stats"`
	ExitCode int      `json:"exit_code"`
	Error    string   `json:"error,omitempty"`

	// Relative to the output directory
	Artifacts ArtifactPaths `json:"artifacts"`
}

// RunStats is the part of the metrics summary kept in run.json.
type RunStats struct {
	Sent          int `json:"sent"`
	Received      int `json:"received"`
	SuccessfulOps int `json:"successful_ops"`
	FailedOps     int `json:"failed_ops"`
	TimeoutCount  int `json:"timeout_count"`
	BytesSent     int `json:"bytes_sent"`
	BytesReceived int `json:"bytes_received"`
	// RTT of sends in milliseconds
	AvgRTTMs float64 `json:"avg_rtt_ms"`
	P50RTTMs float64 `json:"p50_rtt_ms"`
	P95RTTMs float64 `json:"p95_rtt_ms"`
	P99RTTMs float64 `json:"p99_rtt_ms"`
	MaxRTTMs float64 `json:"max_rtt_ms"`
}

// ArtifactPaths names the files of a run.
type ArtifactPaths struct {
	RunJSON     string `json:"run_json"`
	MetricsCSV  string `json:"metrics_csv"`
	MetricsJSON string `json:"metrics_json"`
	SummaryTxt  string `json:"summary_txt,omitempty"`
	TraceFile   string `json:"trace_pcap"`
}

// OutputManager owns the output directory of one run.
type OutputManager struct {
	outputDir string
	runID     string
	metadata  *RunMetadata
}

// NewOutputManager creates outputDir and names the run after the current
// time.
func NewOutputManager(outputDir string) (*OutputManager, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	now := time.Now()
	runID := now.Format("20060102-150405")
	return &OutputManager{
		outputDir: outputDir,
		runID:     runID,
		metadata: &RunMetadata{
			RunID:     runID,
			StartTime: now,
			Artifacts: ArtifactPaths{
				RunJSON:     "run.json",
				MetricsCSV:  fmt.Sprintf("metrics_%s.csv", runID),
				MetricsJSON: fmt.Sprintf("metrics_%s.jsonl", runID),
				TraceFile:   fmt.Sprintf("trace_%s.pcap", runID),
			},
		},
	}, nil
}

// OutputDir returns the output directory path.
func (m *OutputManager) OutputDir() string {
	return m.outputDir
}

// RunID returns the run identifier.
func (m *OutputManager) RunID() string {
	return m.runID
}

// SetEndpoint records the addresses of the roles that ran. Empty means the
// role was disabled.
func (m *OutputManager) SetEndpoint(listenAddr, remoteAddr, configPath string) {
	m.metadata.ListenAddr = listenAddr
	m.metadata.RemoteAddr = remoteAddr
	m.metadata.ConfigPath = configPath
}

func (m *OutputManager) TracePath() string {
	return filepath.Join(m.outputDir, m.metadata.Artifacts.TraceFile)
}

func (m *OutputManager) MetricsCSVPath() string {
	return filepath.Join(m.outputDir, m.metadata.Artifacts.MetricsCSV)
}

func (m *OutputManager) MetricsJSONPath() string {
	return filepath.Join(m.outputDir, m.metadata.Artifacts.MetricsJSON)
}

func (m *OutputManager) SummaryPath() string {
	return filepath.Join(m.outputDir, fmt.Sprintf("summary_%s.txt", m.runID))
}

func (m *OutputManager) RunJSONPath() string {
	return filepath.Join(m.outputDir, m.metadata.Artifacts.RunJSON)
}

// Metadata returns a copy of the run metadata.
func (m *OutputManager) Metadata() RunMetadata {
	return *m.metadata
}

// Finalize stamps the end of the run and writes the summary and run.json.
func (m *OutputManager) Finalize(summary *metrics.Summary, runErr error) error {
	m.metadata.EndTime = time.Now()
	m.metadata.Duration = m.metadata.EndTime.Sub(m.metadata.StartTime).Round(time.Millisecond).String()
	if runErr != nil {
		m.metadata.Error = runErr.Error()
		m.metadata.ExitCode = 1
	}

	if summary != nil {
		m.metadata.Stats = RunStats{
			Sent:          summary.Sent,
			Received:      summary.Received,
			SuccessfulOps: summary.SuccessfulOps,
			FailedOps:     summary.FailedOps,
			TimeoutCount:  summary.TimeoutCount,
			BytesSent:     summary.BytesSent,
			BytesReceived: summary.BytesReceived,
			AvgRTTMs:      summary.AvgRTT,
			P50RTTMs:      summary.P50RTT,
			P95RTTMs:      summary.P95RTT,
			P99RTTMs:      summary.P99RTT,
			MaxRTTMs:      summary.MaxRTT,
		}
	}

	m.metadata.Artifacts.SummaryTxt = filepath.Base(m.SummaryPath())
	if err := m.writeSummary(summary); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	if err := m.writeRunJSON(); err != nil {
		return fmt.Errorf("write run.json: %w", err)
	}
	return nil
}

func (m *OutputManager) writeSummary(summary *metrics.Summary) error {
	f, err := os.Create(m.SummaryPath())
	if err != nil {
		return err
	}
	defer f.Close()

	md := m.metadata
	fmt.Fprintf(f, "cipenip Run Summary\n")
	fmt.Fprintf(f, "===================\n\n")
	fmt.Fprintf(f, "Run ID:     %s\n", md.RunID)
	fmt.Fprintf(f, "Start Time: %s\n", md.StartTime.Format(time.RFC3339))
	fmt.Fprintf(f, "End Time:   %s\n", md.EndTime.Format(time.RFC3339))
	fmt.Fprintf(f, "Duration:   %s\n\n", md.Duration)

	if md.ListenAddr != "" {
		fmt.Fprintf(f, "Target listened on:  %s\n", md.ListenAddr)
	}
	if md.RemoteAddr != "" {
		fmt.Fprintf(f, "Originator wrote to: %s\n", md.RemoteAddr)
	}
	fmt.Fprintln(f)

	if summary != nil {
		fmt.Fprint(f, metrics.FormatSummary(summary))
		fmt.Fprintln(f)
	}
	if md.Error != "" {
		fmt.Fprintf(f, "Error: %s\n\n", md.Error)
	}

	fmt.Fprintf(f, "Artifacts\n")
	fmt.Fprintf(f, "---------\n")
	fmt.Fprintf(f, "Trace:        %s\n", md.Artifacts.TraceFile)
	fmt.Fprintf(f, "Metrics CSV:  %s\n", md.Artifacts.MetricsCSV)
	fmt.Fprintf(f, "Metrics JSON: %s\n", md.Artifacts.MetricsJSON)
	fmt.Fprintf(f, "Run JSON:     %s\n", md.Artifacts.RunJSON)
	return nil
}

func (m *OutputManager) writeRunJSON() error {
	data, err := json.MarshalIndent(m.metadata, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.RunJSONPath(), data, 0644)
}
