package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Format: HumanFormat, Level: WarnLevel, Output: &buf})

	logger.Debug("debug msg", nil)
	logger.Info("info msg", nil)
	logger.Warn("warn msg", nil)
	logger.Error("error msg", nil)

	out := buf.String()
	if strings.Contains(out, "debug msg") || strings.Contains(out, "info msg") {
		t.Errorf("low-priority messages leaked: %s", out)
	}
	if !strings.Contains(out, "warn msg") || !strings.Contains(out, "error msg") {
		t.Errorf("high-priority messages missing: %s", out)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Format: JSONFormat, Level: InfoLevel, Output: &buf})

	logger.Info("hello", map[string]interface{}{"key": "value"})

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["message"] != "hello" || entry["level"] != "info" {
		t.Errorf("entry = %v", entry)
	}
	fields := entry["fields"].(map[string]interface{})
	if fields["key"] != "value" {
		t.Errorf("fields = %v", fields)
	}
}

func TestWithScopedFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Format: JSONFormat, Level: InfoLevel, Output: &buf})

	child := logger.With(map[string]interface{}{"job_id": "j1"})
	child.Info("scoped", map[string]interface{}{"extra": 1})

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatal(err)
	}
	fields := entry["fields"].(map[string]interface{})
	if fields["job_id"] != "j1" {
		t.Errorf("scope field missing: %v", fields)
	}
	if fields["extra"] != float64(1) {
		t.Errorf("call field missing: %v", fields)
	}

	// Parent logger is unchanged.
	buf.Reset()
	logger.Info("plain", nil)
	if strings.Contains(buf.String(), "job_id") {
		t.Error("parent logger inherited scope")
	}
}
