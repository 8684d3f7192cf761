package report

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/0x6d61/sec360/internal/catalog"
	"github.com/0x6d61/sec360/internal/detector"
	"github.com/0x6d61/sec360/internal/engine"
	"github.com/0x6d61/sec360/internal/scoring"
)

type sarifLogView struct {
	Version string `json:"version"`
	Runs    []struct {
		Tool struct {
			Driver struct {
				Name  string `json:"name"`
				Rules []struct {
					ID                   string `json:"id"`
					DefaultConfiguration struct {
						Level string `json:"level"`
					} `json:"defaultConfiguration"`
				} `json:"rules"`
			} `json:"driver"`
		} `json:"tool"`
		Results []struct {
			RuleID  string `json:"ruleId"`
			Level   string `json:"level"`
			Message struct {
				Text string `json:"text"`
			} `json:"message"`
			Locations []struct {
				PhysicalLocation struct {
					ArtifactLocation struct {
						URI string `json:"uri"`
					} `json:"artifactLocation"`
					Region struct {
						StartLine int `json:"startLine"`
					} `json:"region"`
				} `json:"physicalLocation"`
			} `json:"locations"`
		} `json:"results"`
	} `json:"runs"`
}

func generateSARIF(t *testing.T, r *SARIFReporter) sarifLogView {
	t.Helper()
	return generateSARIFFor(t, r, newTestScanResult(t))
}

func generateSARIFFor(t *testing.T, r *SARIFReporter, result *engine.ScanResult) sarifLogView {
	t.Helper()
	var buf bytes.Buffer
	if err := r.Generate(context.Background(), result, &buf); err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	var log sarifLogView
	if err := json.Unmarshal(buf.Bytes(), &log); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	return log
}

func TestSARIFReporter_Format(t *testing.T) {
	if got := (&SARIFReporter{}).Format(); got != "sarif" {
		t.Errorf("Format() = %q, want %q", got, "sarif")
	}
}

func TestSARIFReporter_ConfirmedOnly(t *testing.T) {
	log := generateSARIF(t, &SARIFReporter{})

	if log.Version != "2.1.0" {
		t.Errorf("version = %q, want 2.1.0", log.Version)
	}
	if len(log.Runs) != 1 {
		t.Fatalf("len(runs) = %d, want 1", len(log.Runs))
	}
	run := log.Runs[0]
	if run.Tool.Driver.Name != "sec360" {
		t.Errorf("driver = %q, want sec360", run.Tool.Driver.Name)
	}
	if len(run.Results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(run.Results))
	}

	res := run.Results[0]
	if res.RuleID != "API_KEY" {
		t.Errorf("ruleId = %q, want API_KEY", res.RuleID)
	}
	loc := res.Locations[0].PhysicalLocation
	if loc.ArtifactLocation.URI != "config/settings.py" || loc.Region.StartLine != 1 {
		t.Errorf("location = %+v", loc)
	}
	if res.Message.Text == "" {
		t.Error("result message is empty")
	}
	if len(run.Tool.Driver.Rules) != 1 || run.Tool.Driver.Rules[0].ID != "API_KEY" {
		t.Errorf("rules = %+v", run.Tool.Driver.Rules)
	}
}

func TestSARIFReporter_IncludePotential(t *testing.T) {
	log := generateSARIF(t, &SARIFReporter{IncludePotential: true})
	run := log.Runs[0]
	if len(run.Results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(run.Results))
	}
	notes := 0
	for _, r := range run.Results {
		if r.Level == "note" {
			notes++
		}
	}
	if notes != 2 {
		t.Errorf("notes = %d, want 2", notes)
	}
	if len(run.Tool.Driver.Rules) != 2 {
		t.Errorf("len(rules) = %d, want 2 (API_KEY, PASSWORD)", len(run.Tool.Driver.Rules))
	}
}

func TestSARIFReporter_RuleDefaultsStable(t *testing.T) {
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog.Default() error: %v", err)
	}
	scorer := scoring.NewScorer(cat)
	file := func(path, code string) engine.FileResult {
		res := detector.Detect(code, cat)
		return engine.FileResult{Path: path, Detection: res, Score: scorer.Score(res, scoring.SessionStats{})}
	}
	high := file("a/settings.py", settingsPy)
	medium := file("b/big.py", `api_key = "sk-1234567890abcdef"`+strings.Repeat("\nprint(i)", 200))
	if medium.Score.RiskLevel != scoring.Medium {
		t.Fatalf("fixture risk = %s, want MEDIUM", medium.Score.RiskLevel)
	}

	for _, order := range [][]engine.FileResult{{high, medium}, {medium, high}} {
		log := generateSARIFFor(t, &SARIFReporter{IncludePotential: true}, &engine.ScanResult{Files: order})
		run := log.Runs[0]
		for _, rule := range run.Tool.Driver.Rules {
			if rule.DefaultConfiguration.Level != defaultRuleLevel {
				t.Errorf("rule %s default level = %q, want %q", rule.ID, rule.DefaultConfiguration.Level, defaultRuleLevel)
			}
		}
		if len(run.Tool.Driver.Rules) != 2 {
			t.Errorf("len(rules) = %d, want 2", len(run.Tool.Driver.Rules))
		}

		levels := make(map[string]string)
		for _, r := range run.Results {
			if r.RuleID == "API_KEY" && r.Level != "note" {
				levels[r.Locations[0].PhysicalLocation.ArtifactLocation.URI] = r.Level
			}
		}
		if levels["a/settings.py"] != "error" || levels["b/big.py"] != "warning" {
			t.Errorf("confirmed API_KEY levels = %v, want error for a/settings.py, warning for b/big.py", levels)
		}
	}
}

func TestSARIFLevel(t *testing.T) {
	tests := []struct {
		tier  detector.Tier
		level scoring.RiskLevel
		want  string
	}{
		{detector.Potential, scoring.Critical, "note"},
		{detector.Confirmed, scoring.Low, "warning"},
		{detector.Confirmed, scoring.Medium, "warning"},
		{detector.Confirmed, scoring.High, "error"},
		{detector.Confirmed, scoring.Critical, "error"},
	}
	for _, tt := range tests {
		if got := sarifLevel(tt.tier, tt.level); got != tt.want {
			t.Errorf("sarifLevel(%s, %s) = %q, want %q", tt.tier, tt.level, got, tt.want)
		}
	}
}
