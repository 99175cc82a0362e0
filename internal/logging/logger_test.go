package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fileLogger returns a logger writing to a temp file and a func that
// closes it and returns what was written.
func fileLogger(t *testing.T, level LogLevel, format string, logEvery int) (*Logger, func() string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cipenip.log")
	l, err := NewLoggerWithOptions(level, path, format, logEvery)
	if err != nil {
		t.Fatalf("NewLoggerWithOptions: %v", err)
	}
	// Keep test output clean; console behaviour is checked separately.
	l.stdout = log.New(&bytes.Buffer{}, "", 0)
	l.stderr = log.New(&bytes.Buffer{}, "", 0)
	return l, func() string {
		t.Helper()
		if err := l.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read log: %v", err)
		}
		return string(data)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"silent", LogLevelSilent, false},
		{"error", LogLevelError, false},
		{"", LogLevelInfo, false},
		{"info", LogLevelInfo, false},
		{" Verbose ", LogLevelVerbose, false},
		{"DEBUG", LogLevelDebug, false},
		{"trace", LogLevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

// logSessionLifecycle emits one message per level, the way the originator
// reports a connection.
func logSessionLifecycle(l *Logger) {
	l.Error("Connection to 10.0.0.50:44818 lost: closed by peer")
	l.Info("Connected to 10.0.0.50:44818 (127.0.0.1:50000/10.0.0.50:44818)")
	l.Verbose("Registered session 0x00001001 for 10.0.0.9:50000")
	l.Debug("Session state WaitRegisterSessionReply -> Ready")
}

func TestLevelFiltersMessages(t *testing.T) {
	lines := map[LogLevel]string{
		LogLevelError:   "ERROR: Connection to 10.0.0.50:44818 lost",
		LogLevelInfo:    "INFO: Connected to 10.0.0.50:44818",
		LogLevelVerbose: "VERBOSE: Registered session 0x00001001",
		LogLevelDebug:   "DEBUG: Session state WaitRegisterSessionReply -> Ready",
	}

	for _, level := range []LogLevel{LogLevelSilent, LogLevelError, LogLevelInfo, LogLevelVerbose, LogLevelDebug} {
		t.Run(level.String(), func(t *testing.T) {
			l, contents := fileLogger(t, level, "text", 1)
			logSessionLifecycle(l)
			out := contents()

			for msgLevel, line := range lines {
				if got, want := strings.Contains(out, line), msgLevel <= level; got != want {
					t.Errorf("%q present = %v, want %v", line, got, want)
				}
			}
		})
	}
}

func TestSetLevel(t *testing.T) {
	l, contents := fileLogger(t, LogLevelError, "text", 1)
	l.Verbose("Registered session 0x00000001 for 10.0.0.9:50000")
	l.SetLevel(LogLevelVerbose)
	if l.GetLevel() != LogLevelVerbose {
		t.Fatalf("GetLevel = %s", l.GetLevel())
	}
	l.Verbose("Registered session 0x00000002 for 10.0.0.9:50001")

	out := contents()
	if strings.Contains(out, "0x00000001") || !strings.Contains(out, "0x00000002") {
		t.Errorf("log = %q", out)
	}
}

func TestJSONFormat(t *testing.T) {
	l, contents := fileLogger(t, LogLevelInfo, "json", 1)
	l.Info("Tracing frames to %s", "trace.pcap")
	l.Error("Sink %s disabled: %v", "kafka:plant", errors.New("broker unreachable"))

	type entry struct {
		Time    string `json:"time"`
		Level   string `json:"level"`
		Message string `json:"message"`
	}
	var entries []entry
	for _, line := range strings.Split(strings.TrimSpace(contents()), "\n") {
		var e entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("line %q is not JSON: %v", line, err)
		}
		entries = append(entries, e)
	}

	if len(entries) != 2 {
		t.Fatalf("got %d entries", len(entries))
	}
	if entries[0].Level != "info" || entries[0].Message != "Tracing frames to trace.pcap" || entries[0].Time == "" {
		t.Errorf("entry 0 = %+v", entries[0])
	}
	if entries[1].Level != "error" || entries[1].Message != "Sink kafka:plant disabled: broker unreachable" {
		t.Errorf("entry 1 = %+v", entries[1])
	}
}

func TestLogOperation(t *testing.T) {
	l, contents := fileLogger(t, LogLevelVerbose, "text", 1)
	l.LogOperation("SEND", "Line.Speed", "0x4D", true, 1.25, 0x00, nil)
	l.LogOperation("SEND", "RECEIVE", "0x4D", false, 100, 0x00, errors.New("send tag data: timeout: no reply for RECEIVE within 100ms"))
	out := contents()

	for _, want := range []string{
		"VERBOSE: SUCCESS SEND on Line.Speed (service: 0x4D, status: 0x00, RTT: 1.250ms)",
		"INFO: FAILED SEND on RECEIVE (service: 0x4D, status: 0x00, RTT: 100.000ms) - error: send tag data: timeout",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q\n%s", want, out)
		}
	}
}

func TestLogOperationSuccessHiddenAtInfo(t *testing.T) {
	l, contents := fileLogger(t, LogLevelInfo, "text", 1)
	l.LogOperation("SEND", "Line.Speed", "0x4D", true, 0.8, 0x00, nil)
	l.LogOperation("SEND", "Line.Speed", "0x4D", false, 0.9, 0x05, nil)
	out := contents()

	if strings.Contains(out, "SUCCESS") {
		t.Errorf("successful write logged at info: %q", out)
	}
	if !strings.Contains(out, "FAILED SEND on Line.Speed (service: 0x4D, status: 0x05") {
		t.Errorf("failed write missing: %q", out)
	}
}

func TestLogStartup(t *testing.T) {
	l, contents := fileLogger(t, LogLevelVerbose, "text", 1)
	l.LogStartup("0.0.0.0:44818", "10.0.0.50:44818", "cipenip.yaml")
	out := contents()

	for _, want := range []string{"Starting cipenip endpoint", "Listen: 0.0.0.0:44818", "Remote: 10.0.0.50:44818", "Config: cipenip.yaml"} {
		if !strings.Contains(out, want) {
			t.Errorf("startup log missing %q", want)
		}
	}
}

func TestLogHex(t *testing.T) {
	frame := []byte{0x6f, 0x00, 0x10, 0x00}

	l, contents := fileLogger(t, LogLevelDebug, "text", 1)
	l.LogHex("TX", frame)
	if out := contents(); !strings.Contains(out, "DEBUG: TX: 6f 00 10 00") {
		t.Errorf("log = %q", out)
	}

	l, contents = fileLogger(t, LogLevelVerbose, "text", 1)
	l.LogHex("TX", frame)
	if out := contents(); out != "" {
		t.Errorf("frame dumped below debug: %q", out)
	}
}

func TestConsoleSampling(t *testing.T) {
	l, contents := fileLogger(t, LogLevelVerbose, "text", 3)
	var stdout, stderr bytes.Buffer
	l.stdout = log.New(&stdout, "", 0)
	l.stderr = log.New(&stderr, "", 0)

	for i := 0; i < 9; i++ {
		l.Verbose("Frame %d from 10.0.0.9:50000", i)
	}
	l.Error("Frame from 10.0.0.9:50000: unknown variant")
	l.Error("Frame from 10.0.0.9:50001: unknown variant")

	if n := strings.Count(stdout.String(), "\n"); n != 3 {
		t.Errorf("stdout got %d of 9 sampled lines, want 3:\n%s", n, stdout.String())
	}
	if n := strings.Count(stderr.String(), "\n"); n != 2 {
		t.Errorf("stderr got %d errors, want 2 (errors are never sampled)", n)
	}
	if n := strings.Count(contents(), "Frame "); n != 11 {
		t.Errorf("file got %d lines, want all 11", n)
	}
}

func TestConsoleQuietBelowVerbose(t *testing.T) {
	l, err := NewLogger(LogLevelInfo, "")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	var stdout bytes.Buffer
	l.stdout = log.New(&stdout, "", 0)

	l.Info("Connected to 10.0.0.50:44818")
	if stdout.Len() != 0 {
		t.Errorf("info reached the console at info level: %q", stdout.String())
	}
}

func TestNewLoggerRejectsUnknownFormat(t *testing.T) {
	if _, err := NewLoggerWithOptions(LogLevelInfo, "", "xml", 1); err == nil {
		t.Fatal("expected error for format xml")
	}
	if _, err := NewLogger(LogLevelInfo, filepath.Join(t.TempDir(), "missing", "dir", "x.log")); err == nil {
		t.Fatal("expected error for an uncreatable log file")
	}
}

func TestNilLogger(t *testing.T) {
	var l *Logger
	logSessionLifecycle(l)
	l.LogHex("RX", []byte{1, 2})
	l.LogOperation("SEND", "RECEIVE", "0x4D", true, 1, 0, nil)
	l.LogStartup("0.0.0.0:44818", "(disabled)", "cipenip.yaml")
	l.SetLevel(LogLevelDebug)
	if l.GetLevel() != LogLevelSilent {
		t.Errorf("nil GetLevel = %s", l.GetLevel())
	}
	if err := l.Close(); err != nil {
		t.Errorf("nil Close = %v", err)
	}
}

func TestCloseTwice(t *testing.T) {
	l, err := NewLogger(LogLevelInfo, filepath.Join(t.TempDir(), "cipenip.log"))
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	l.Error("after close")
}
