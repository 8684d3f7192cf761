package report

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/0x6d61/sec360/internal/catalog"
	"github.com/0x6d61/sec360/internal/detector"
)

func TestJSONReporter_Format(t *testing.T) {
	r := &JSONReporter{}
	if got := r.Format(); got != "json" {
		t.Errorf("Format() = %q, want %q", got, "json")
	}
}

func TestJSONReporter_Generate_SchemaVersion(t *testing.T) {
	r := &JSONReporter{}
	var buf bytes.Buffer
	if err := r.Generate(context.Background(), newTestScanResult(t), &buf); err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	var output map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &output); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
	if output["schema_version"] != "1.0" {
		t.Errorf("schema_version = %v, want %q", output["schema_version"], "1.0")
	}
	if output["tool"] != "sec360" {
		t.Errorf("tool = %v, want %q", output["tool"], "sec360")
	}
}

func TestJSONReporter_Generate_Files(t *testing.T) {
	r := &JSONReporter{}
	result := newTestScanResult(t)

	var buf bytes.Buffer
	if err := r.Generate(context.Background(), result, &buf); err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	var output jsonOutput
	if err := json.Unmarshal(buf.Bytes(), &output); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}

	if len(output.Files) != 2 {
		t.Fatalf("len(files) = %d, want 2", len(output.Files))
	}
	f := output.Files[0]
	if f.Path != "config/settings.py" {
		t.Errorf("files[0].path = %q", f.Path)
	}
	if f.FieldCount != 2 || f.DataCount != 1 {
		t.Errorf("field/data = %d/%d, want 2/1", f.FieldCount, f.DataCount)
	}
	if f.Score != result.Files[0].Score.FinalScore {
		t.Errorf("score = %d, want %d", f.Score, result.Files[0].Score.FinalScore)
	}
	if f.Contributions[catalog.APIKey] <= 0 {
		t.Errorf("API_KEY contribution = %v, want > 0", f.Contributions[catalog.APIKey])
	}
	if len(f.Flags) != 3 {
		t.Errorf("len(flags) = %d, want 3", len(f.Flags))
	}
	for _, fl := range f.Flags {
		if fl.Tier == detector.Potential && fl.Value != "" {
			t.Errorf("potential flag carries a value: %+v", fl)
		}
	}

	if output.Summary.Files != 2 || output.Summary.FlaggedFiles != 1 {
		t.Errorf("summary = %+v", output.Summary)
	}
	if len(output.Errors) != 1 {
		t.Errorf("len(errors) = %d, want 1", len(output.Errors))
	}
	if output.Scan.DurationSeconds != 1.2 {
		t.Errorf("duration_seconds = %v, want 1.2", output.Scan.DurationSeconds)
	}
}

func TestJSONReporter_Generate_EmptyFilesIsArray(t *testing.T) {
	r := &JSONReporter{}
	var buf bytes.Buffer
	if err := r.Generate(context.Background(), newEmptyScanResult(), &buf); err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if !strings.Contains(buf.String(), `"files": []`) {
		t.Errorf("files should encode as an empty array:\n%s", buf.String())
	}
	if strings.Contains(buf.String(), `"errors"`) {
		t.Error("errors should be omitted when empty")
	}
}

func TestJSONReporter_Generate_Compact(t *testing.T) {
	r := &JSONReporter{Compact: true}
	var buf bytes.Buffer
	if err := r.Generate(context.Background(), newTestScanResult(t), &buf); err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if got := strings.Count(strings.TrimSpace(buf.String()), "\n"); got != 0 {
		t.Errorf("compact output has %d newlines, want 0", got)
	}
}

func TestJSONReporter_Generate_CancelledContext(t *testing.T) {
	r := &JSONReporter{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var buf bytes.Buffer
	if err := r.Generate(ctx, newEmptyScanResult(), &buf); err == nil {
		t.Error("Generate() with cancelled context should return error")
	}
}
