// Package report provides formatters for scan results and session records.
package report

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/0x6d61/sec360/internal/engine"
)

// Reporter generates output in a specific format.
type Reporter interface {
	// Format returns the format name (e.g., "text", "json").
	Format() string

	// Generate writes the formatted scan result to w.
	Generate(ctx context.Context, result *engine.ScanResult, w io.Writer) error
}

// Formats lists the names accepted by New.
var Formats = []string{"text", "json", "sarif"}

// New creates a reporter by format name ("text", "json" or "sarif").
// The format name is case-insensitive.
func New(format string) (Reporter, error) {
	switch strings.ToLower(format) {
	case "text":
		return &TextReporter{}, nil
	case "json":
		return &JSONReporter{}, nil
	case "sarif":
		return &SARIFReporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported report format: %q", format)
	}
}
