// Package engine runs detection and scoring over batches of source files.
package engine

import (
	"time"

	"github.com/0x6d61/sec360/internal/detector"
	"github.com/0x6d61/sec360/internal/scoring"
)

// ScanTarget is one file (or snippet) to scan.
type ScanTarget struct {
	Path    string
	Content string
}

// FileResult holds detection and scoring output for one target.
type FileResult struct {
	Path        string             `json:"path"`
	Fingerprint string             `json:"fingerprint"`
	DuplicateOf string             `json:"duplicate_of,omitempty"`
	Detection   *detector.Result   `json:"detection"`
	Score       *scoring.Breakdown `json:"score"`
}

// Flagged reports whether the file produced any flag.
func (f *FileResult) Flagged() bool {
	return f.Detection != nil && len(f.Detection.Flags) > 0
}

// ScanResult holds the complete result of a batch scan. Files keep the
// order of the targets they were produced from.
type ScanResult struct {
	Files     []FileResult
	StartTime time.Time
	EndTime   time.Time
	Errors    []error
}

// Summary aggregates a ScanResult.
type Summary struct {
	Files        int               `json:"files"`
	FlaggedFiles int               `json:"flagged_files"`
	Flags        int               `json:"flags"`
	Confirmed    int               `json:"confirmed"`
	MaxScore     int               `json:"max_score"`
	MaxLevel     scoring.RiskLevel `json:"max_level"`
	Worst        string            `json:"worst,omitempty"`
}

// Summarize computes totals over r.Files. The worst file is the first one
// with the highest final score.
func (r *ScanResult) Summarize() Summary {
	s := Summary{Files: len(r.Files), MaxLevel: scoring.Low}
	for i := range r.Files {
		f := &r.Files[i]
		if f.Flagged() {
			s.FlaggedFiles++
		}
		if f.Detection != nil {
			s.Flags += len(f.Detection.Flags)
			for _, fl := range f.Detection.Flags {
				if fl.Tier == detector.Confirmed {
					s.Confirmed++
				}
			}
		}
		if f.Score != nil && (s.Worst == "" || f.Score.FinalScore > s.MaxScore) {
			s.MaxScore = f.Score.FinalScore
			s.MaxLevel = f.Score.RiskLevel
			s.Worst = f.Path
		}
	}
	return s
}

// Duration returns how long the scan took.
func (r *ScanResult) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}
