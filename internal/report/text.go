package report

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/0x6d61/sec360/internal/detector"
	"github.com/0x6d61/sec360/internal/engine"
)

const (
	doubleLine = "\u2550" // ═
	singleLine = "\u2500" // ─
	lineWidth  = 50
)

// TextReporter outputs plain terminal text.
type TextReporter struct {
	// Verbose controls detail level: 0=flagged files only, 1=+clean files, 2=+potential flags and advice.
	Verbose int
}

// Format returns "text".
func (r *TextReporter) Format() string {
	return "text"
}

// Generate writes formatted scan results to w.
func (r *TextReporter) Generate(ctx context.Context, result *engine.ScanResult, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b := &strings.Builder{}
	doubleBar := strings.Repeat(doubleLine, lineWidth)
	singleBar := strings.Repeat(singleLine, lineWidth)

	fmt.Fprintln(b, doubleBar)
	fmt.Fprintln(b, "sec360 - Sensitive Data Scan Results")
	fmt.Fprintln(b, doubleBar)
	fmt.Fprintf(b, "Files:    %d\n", len(result.Files))
	fmt.Fprintf(b, "Duration: %.1fs\n", result.Duration().Seconds())

	shown := 0
	for _, f := range result.Files {
		if !f.Flagged() && r.Verbose < 1 {
			continue
		}
		shown++
		fmt.Fprintln(b, singleBar)
		fmt.Fprintf(b, "[%s] %s  (score %d/100)\n", f.Score.RiskLevel, f.Path, f.Score.FinalScore)
		if f.DuplicateOf != "" {
			fmt.Fprintf(b, "  Duplicate of: %s\n", f.DuplicateOf)
		}
		fmt.Fprintf(b, "  Lines: %d  Fields: %d  Confirmed: %d\n",
			f.Detection.LinesOfCode, f.Detection.FieldCount, f.Detection.DataCount)
		for _, fl := range f.Detection.Flags {
			if fl.Tier == detector.Potential && r.Verbose < 2 {
				continue
			}
			fmt.Fprintf(b, "  line %-4d %-9s %-12s %s", fl.Line, fl.Tier, fl.Category, fl.FieldName)
			if fl.Value != "" {
				fmt.Fprintf(b, " = %s", fl.Value)
			}
			fmt.Fprintln(b)
		}
		if r.Verbose >= 2 {
			for _, rec := range f.Score.Recommendations {
				fmt.Fprintf(b, "  advice: %s\n", rec.Advice)
			}
		}
	}
	if shown == 0 {
		fmt.Fprintln(b, singleBar)
		fmt.Fprintln(b, "No sensitive data found.")
	}

	if len(result.Errors) > 0 {
		fmt.Fprintln(b, singleBar)
		fmt.Fprintln(b, "Errors:")
		for _, e := range result.Errors {
			fmt.Fprintf(b, "  - %s\n", e.Error())
		}
	}

	sum := result.Summarize()
	fmt.Fprintln(b, doubleBar)
	fmt.Fprintf(b, "Summary: %d flag(s) in %d of %d file(s), highest risk %s (%d)\n",
		sum.Flags, sum.FlaggedFiles, sum.Files, sum.MaxLevel, sum.MaxScore)
	fmt.Fprintln(b, doubleBar)

	_, err := io.WriteString(w, b.String())
	return err
}
