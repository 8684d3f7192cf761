package report

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/0x6d61/sec360/internal/catalog"
	"github.com/0x6d61/sec360/internal/detector"
	"github.com/0x6d61/sec360/internal/engine"
	"github.com/0x6d61/sec360/internal/scoring"
)

// JSONReporter outputs structured JSON.
type JSONReporter struct {
	// Compact outputs single-line JSON when true (no indentation).
	Compact bool
}

// Format returns "json".
func (r *JSONReporter) Format() string {
	return "json"
}

// jsonOutput is the top-level JSON structure.
type jsonOutput struct {
	SchemaVersion string         `json:"schema_version"`
	Tool          string         `json:"tool"`
	Scan          jsonScan       `json:"scan"`
	Files         []jsonFile     `json:"files"`
	Summary       engine.Summary `json:"summary"`
	Errors        []string       `json:"errors,omitempty"`
}

// jsonScan represents scan metadata in JSON.
type jsonScan struct {
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DurationSeconds float64   `json:"duration_seconds"`
}

// jsonFile represents one scanned file in JSON.
type jsonFile struct {
	Path          string                       `json:"path"`
	Fingerprint   string                       `json:"fingerprint"`
	DuplicateOf   string                       `json:"duplicate_of,omitempty"`
	LinesOfCode   int                          `json:"lines_of_code"`
	FieldCount    int                          `json:"field_count"`
	DataCount     int                          `json:"data_count"`
	Score         int                          `json:"score"`
	RiskLevel     scoring.RiskLevel            `json:"risk_level"`
	Contributions map[catalog.Category]float64 `json:"category_contributions"`
	Flags         []detector.Flag              `json:"flags"`
	Advice        []scoring.Recommendation     `json:"recommendations,omitempty"`
}

// Generate writes JSON scan results to w.
func (r *JSONReporter) Generate(ctx context.Context, result *engine.ScanResult, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	output := jsonOutput{
		SchemaVersion: "1.0",
		Tool:          "sec360",
		Scan: jsonScan{
			StartTime:       result.StartTime,
			EndTime:         result.EndTime,
			DurationSeconds: result.Duration().Seconds(),
		},
		Files:   make([]jsonFile, 0, len(result.Files)),
		Summary: result.Summarize(),
	}

	for _, f := range result.Files {
		output.Files = append(output.Files, jsonFile{
			Path:          f.Path,
			Fingerprint:   f.Fingerprint,
			DuplicateOf:   f.DuplicateOf,
			LinesOfCode:   f.Detection.LinesOfCode,
			FieldCount:    f.Detection.FieldCount,
			DataCount:     f.Detection.DataCount,
			Score:         f.Score.FinalScore,
			RiskLevel:     f.Score.RiskLevel,
			Contributions: f.Score.CategoryContributions,
			Flags:         f.Detection.Flags,
			Advice:        f.Score.Recommendations,
		})
	}

	if len(result.Errors) > 0 {
		output.Errors = make([]string, len(result.Errors))
		for i, e := range result.Errors {
			output.Errors[i] = e.Error()
		}
	}

	enc := json.NewEncoder(w)
	if !r.Compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(output)
}
