package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/0x6d61/sec360/internal/engine"
	"github.com/0x6d61/sec360/internal/report"
	"github.com/0x6d61/sec360/internal/scoring"
)

// stdinPath names the target read from standard input.
const stdinPath = "<stdin>"

// ErrRiskThreshold is returned by scan when --fail-on is set and the
// highest risk level reaches it.
var ErrRiskThreshold = errors.New("risk threshold reached")

var scanCmd = &cobra.Command{
	Use:   "scan [path...]",
	Short: "Scan files or directories for sensitive data",
	Long: `Scan detects credentials, personal data and other sensitive values in the
given files and directories and scores each file from 0 to 100.

Directories are walked recursively. With no path, or a single "-", the code
is read from standard input.`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringP("format", "f", "text", "Output format ("+strings.Join(report.Formats, ", ")+")")
	scanCmd.Flags().StringP("output", "o", "", "Output file path")
	scanCmd.Flags().IntP("verbose", "v", 0, "Verbosity level (0-2)")
	scanCmd.Flags().Int("threads", 4, "Number of concurrent workers")
	scanCmd.Flags().Int64("max-bytes", 1<<20, "Skip files larger than this many bytes")
	scanCmd.Flags().StringSlice("ext", nil, "Only scan these extensions when walking directories (e.g. .py,.go)")
	scanCmd.Flags().Bool("include-potential", false, "Include field-name-only flags in SARIF output")
	scanCmd.Flags().String("fail-on", "", "Exit with an error when any file reaches this risk level (low, medium, high, critical)")
}

// runScan wires catalog, scorer, batch scanner and reporter.
func runScan(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	outputPath, _ := cmd.Flags().GetString("output")
	verbose, _ := cmd.Flags().GetInt("verbose")
	threads, _ := cmd.Flags().GetInt("threads")
	maxBytes, _ := cmd.Flags().GetInt64("max-bytes")
	exts, _ := cmd.Flags().GetStringSlice("ext")
	includePotential, _ := cmd.Flags().GetBool("include-potential")
	failOn, _ := cmd.Flags().GetString("fail-on")

	var threshold scoring.RiskLevel
	if failOn != "" {
		lvl, ok := scoring.ParseRiskLevel(failOn)
		if !ok {
			return fmt.Errorf("invalid --fail-on level %q", failOn)
		}
		threshold = lvl
	}

	reporter, err := report.New(format)
	if err != nil {
		return err
	}
	switch r := reporter.(type) {
	case *report.TextReporter:
		r.Verbose = verbose
	case *report.SARIFReporter:
		r.IncludePotential = includePotential
	}

	fromStdin := len(args) == 0 || (len(args) == 1 && args[0] == "-")
	if !fromStdin {
		for _, a := range args {
			if a == "-" {
				return fmt.Errorf("\"-\" cannot be combined with other paths")
			}
		}
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.LogLevel)

	cat, scorer, err := loadEngine(cfg)
	if err != nil {
		return err
	}

	scanner := engine.NewScanner(cat, scorer, &engine.ScanConfig{
		Threads:      threads,
		MaxFileBytes: maxBytes,
		Extensions:   exts,
	}, engine.WithLogger(logger))
	if verbose > 0 {
		stderr := cmd.ErrOrStderr()
		scanner.SetProgressCallback(func(msg string) {
			fmt.Fprintf(stderr, "[*] %s\n", msg)
		})
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()

	var result *engine.ScanResult
	if fromStdin {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read standard input: %w", err)
		}
		result, err = scanner.Scan(ctx, []engine.ScanTarget{{Path: stdinPath, Content: string(data)}})
		if err != nil {
			return err
		}
	} else {
		result, err = scanner.ScanPaths(ctx, args)
		if err != nil {
			return err
		}
	}
	for _, e := range result.Errors {
		logger.Warn("file skipped", "error", e)
	}

	out := cmd.OutOrStdout()
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("failed to create output file %q: %w", outputPath, err)
		}
		defer f.Close()
		out = f
	}
	if err := reporter.Generate(ctx, result, out); err != nil {
		return fmt.Errorf("failed to write %s report: %w", reporter.Format(), err)
	}

	if threshold != "" {
		if s := result.Summarize(); s.Worst != "" && s.MaxLevel.Severity() >= threshold.Severity() {
			return fmt.Errorf("%w: %s scored %d (%s)", ErrRiskThreshold, s.Worst, s.MaxScore, s.MaxLevel)
		}
	}
	return nil
}

