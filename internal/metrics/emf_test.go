package metrics

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(nil) })
	return &buf
}

func TestRecorder_FlushOutput(t *testing.T) {
	buf := captureOutput(t)

	rec := New("VideoScreen")
	rec.Dimension("Provider", "zhipu")
	rec.Metric("ClassifyLatencyMs", 1234.5, UnitMilliseconds)
	rec.Metric("ClassifyCalls", 1, UnitCount)
	rec.Property("sessionId", "abc-123")
	rec.Flush()

	output := buf.String()
	if strings.Count(output, "\n") != 1 {
		t.Fatalf("expected exactly one line, got %q", output)
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(output), &doc); err != nil {
		t.Fatalf("failed to parse EMF output as JSON: %v\nOutput: %s", err, output)
	}

	awsMap, ok := doc["_aws"].(map[string]any)
	if !ok {
		t.Fatal("missing _aws directive in EMF output")
	}
	if _, ok := awsMap["Timestamp"]; !ok {
		t.Error("missing Timestamp in _aws directive")
	}
	cwArr, ok := awsMap["CloudWatchMetrics"].([]any)
	if !ok || len(cwArr) == 0 {
		t.Fatal("CloudWatchMetrics should be a non-empty array")
	}
	cw := cwArr[0].(map[string]any)
	if cw["Namespace"] != "VideoScreen" {
		t.Errorf("expected namespace VideoScreen, got %v", cw["Namespace"])
	}

	if doc["Provider"] != "zhipu" {
		t.Errorf("expected Provider=zhipu, got %v", doc["Provider"])
	}
	if doc["ClassifyLatencyMs"] != 1234.5 {
		t.Errorf("expected ClassifyLatencyMs=1234.5, got %v", doc["ClassifyLatencyMs"])
	}
	if doc["ClassifyCalls"] != float64(1) {
		t.Errorf("expected ClassifyCalls=1, got %v", doc["ClassifyCalls"])
	}
	if doc["sessionId"] != "abc-123" {
		t.Errorf("expected sessionId=abc-123, got %v", doc["sessionId"])
	}
}

func TestRecorder_FlushEmpty(t *testing.T) {
	buf := captureOutput(t)

	New("Test").Flush()

	if buf.Len() != 0 {
		t.Errorf("expected no output for empty recorder, got: %s", buf.String())
	}
}

func TestRecorder_DiscardByDefault(t *testing.T) {
	SetOutput(nil)
	// Must not panic or write anywhere observable.
	New("Test").Count("Calls").Flush()
}

func TestRecorder_Count(t *testing.T) {
	rec := New("Test")
	rec.Count("Errors")

	if v, ok := rec.values["Errors"]; !ok || v != float64(1) {
		t.Errorf("expected Errors=1, got %v", v)
	}
	if m, ok := rec.metrics["Errors"]; !ok || m.Unit != UnitCount {
		t.Errorf("expected unit Count, got %v", m.Unit)
	}
}

func TestRecorder_Chaining(t *testing.T) {
	rec := New("Test").
		Dimension("Outcome", "success").
		Metric("Duration", 100, UnitMilliseconds).
		Count("Calls").
		Property("frame", "00-00-01.000")

	if rec.dimensions["Outcome"] != "success" {
		t.Error("chaining Dimension failed")
	}
	if rec.values["Duration"] != float64(100) {
		t.Error("chaining Metric failed")
	}
	if rec.values["Calls"] != float64(1) {
		t.Error("chaining Count failed")
	}
	if rec.properties["frame"] != "00-00-01.000" {
		t.Error("chaining Property failed")
	}
}
