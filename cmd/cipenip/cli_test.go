package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/Bataide/cip-enip-driver/internal/cip/protocol"
)

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRequiredFlagsErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"send missing symbol", []string{"send", "--data", "00"}, `required flag(s) "symbol" not set`},
		{"send missing payload", []string{"send", "--symbol", "X"}, "required flag --data or --value not set"},
		{"send both payloads", []string{"send", "--symbol", "X", "--data", "00", "--value", "1"}, "either --data or --value"},
		{"send unknown type", []string{"send", "--symbol", "X", "--type", "FOO", "--data", "00"}, "unknown data type"},
		{"send unsized type", []string{"send", "--symbol", "X", "--type", "BOOL", "--data", "00"}, "cannot be written"},
		{"metrics summary missing file", []string{"metrics", "summary"}, "accepts 1 arg(s)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, newRootCmd(), tt.args...)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error: got %q want %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestSendPayload(t *testing.T) {
	dt, data, err := sendPayload(&sendFlags{dataType: "dint", values: []string{"1", "2"}})
	if err != nil {
		t.Fatalf("sendPayload: %v", err)
	}
	if dt != protocol.TypeDINT || !bytes.Equal(data, []byte{1, 0, 0, 0, 2, 0, 0, 0}) {
		t.Errorf("got %s % x", dt, data)
	}

	_, data, err = sendPayload(&sendFlags{dataType: "INT", data: "01 00 ff ff"})
	if err != nil {
		t.Fatalf("sendPayload hex: %v", err)
	}
	if !bytes.Equal(data, []byte{1, 0, 0xff, 0xff}) {
		t.Errorf("hex data = % x", data)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cipenip.yaml")

	out, err := execute(t, newRootCmd(), "config", "init", "--config", path)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, path) {
		t.Errorf("init output %q", out)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	if _, err := execute(t, newRootCmd(), "config", "init", "--config", path); err == nil {
		t.Fatal("init over an existing file should fail without --force")
	}

	out, err = execute(t, newRootCmd(), "config", "validate", "--config", path)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out, "is valid") || !strings.Contains(out, "127.0.0.1:44818") {
		t.Errorf("validate output %q", out)
	}
}

func TestConfigValidateRejectsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("endpoint:\n  enable_originator: false\n  enable_target: false\n"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := execute(t, newRootCmd(), "config", "validate", "--config", path)
	if err == nil || !strings.Contains(err.Error(), "Configuration error") {
		t.Fatalf("validate = %v", err)
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, newRootCmd(), "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "cipenip version dev") {
		t.Errorf("version output %q", out)
	}
}
