package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/0x6d61/sec360/internal/catalog"
	"github.com/0x6d61/sec360/internal/scoring"
)

// ScanConfig holds configuration for a batch scan.
type ScanConfig struct {
	Threads      int      // Number of concurrent workers (default 4)
	MaxFileBytes int64    // Files larger than this are skipped
	Extensions   []string // Only files with these extensions are read when walking directories. Empty = all.
}

// DefaultScanConfig returns sensible defaults.
func DefaultScanConfig() *ScanConfig {
	return &ScanConfig{
		Threads:      4,
		MaxFileBytes: 1 << 20,
	}
}

// Scanner detects and scores batches of files.
type Scanner struct {
	catalog *catalog.Catalog
	scorer  *scoring.Scorer
	config  *ScanConfig
	logger  *slog.Logger

	// Progress callback
	onProgress func(msg string)
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithLogger sets the scanner's logger.
func WithLogger(l *slog.Logger) ScannerOption {
	return func(s *Scanner) {
		s.logger = l
	}
}

// NewScanner creates a scanner.
func NewScanner(cat *catalog.Catalog, scorer *scoring.Scorer, config *ScanConfig, opts ...ScannerOption) *Scanner {
	if config == nil {
		config = DefaultScanConfig()
	}
	s := &Scanner{
		catalog: cat,
		scorer:  scorer,
		config:  config,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetProgressCallback sets a function called with status messages.
func (s *Scanner) SetProgressCallback(fn func(string)) {
	s.onProgress = fn
}

func (s *Scanner) progress(format string, args ...any) {
	if s.onProgress != nil {
		s.onProgress(fmt.Sprintf(format, args...))
	}
}

// Scan detects and scores every target. Results keep the order of targets.
// Files whose normalized content repeats an earlier target are marked with
// DuplicateOf.
func (s *Scanner) Scan(ctx context.Context, targets []ScanTarget) (*ScanResult, error) {
	result := &ScanResult{StartTime: time.Now()}
	defer func() {
		result.EndTime = time.Now()
	}()

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("engine: scan cancelled before start: %w", err)
	}
	if len(targets) == 0 {
		s.progress("no files to scan")
		return result, nil
	}

	pool := newWorkerPool(s.config.Threads, s.logger)
	pool.start(ctx, s.catalog, s.scorer)

	files := make([]*FileResult, len(targets))
	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range pool.results {
			if r.err != nil {
				result.Errors = append(result.Errors, r.err)
				continue
			}
			f := r.file
			files[r.index] = &f
		}
	}()

	for i, t := range targets {
		pool.submit(job{index: i, target: t})
	}
	s.progress("submitted %d file(s) to %d workers", len(targets), pool.workers)
	pool.close()
	<-done

	seen := make(map[string]string, len(targets))
	for _, f := range files {
		if f == nil {
			continue
		}
		if first, ok := seen[f.Fingerprint]; ok {
			f.DuplicateOf = first
		} else {
			seen[f.Fingerprint] = f.Path
		}
		result.Files = append(result.Files, *f)
	}

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("engine: scan cancelled: %w", err)
	}
	s.progress("scan complete: %d file(s), %d flagged", len(result.Files), result.Summarize().FlaggedFiles)
	return result, nil
}

// ScanPaths reads files and directories from disk and scans them.
// Directories are walked recursively, skipping hidden directories. Files
// that cannot be read, are too large or look binary are recorded in
// ScanResult.Errors and skipped.
func (s *Scanner) ScanPaths(ctx context.Context, paths []string) (*ScanResult, error) {
	targets, errs := s.collect(paths)
	result, err := s.Scan(ctx, targets)
	result.Errors = append(errs, result.Errors...)
	return result, err
}

func (s *Scanner) collect(paths []string) ([]ScanTarget, []error) {
	var (
		targets []ScanTarget
		errs    []error
	)
	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			errs = append(errs, fmt.Errorf("engine: stat %s: %w", root, err))
			continue
		}
		if !info.IsDir() {
			t, err := s.readTarget(root, info.Size())
			if err != nil {
				errs = append(errs, err)
				continue
			}
			targets = append(targets, t)
			continue
		}

		walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				errs = append(errs, fmt.Errorf("engine: walk %s: %w", path, err))
				return nil
			}
			if d.IsDir() {
				if path != root && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() || !s.wantExtension(path) {
				return nil
			}
			fi, err := d.Info()
			if err != nil {
				errs = append(errs, fmt.Errorf("engine: stat %s: %w", path, err))
				return nil
			}
			t, err := s.readTarget(path, fi.Size())
			if err != nil {
				errs = append(errs, err)
				return nil
			}
			targets = append(targets, t)
			return nil
		})
		if walkErr != nil {
			errs = append(errs, fmt.Errorf("engine: walk %s: %w", root, walkErr))
		}
	}
	return targets, errs
}

func (s *Scanner) readTarget(path string, size int64) (ScanTarget, error) {
	if s.config.MaxFileBytes > 0 && size > s.config.MaxFileBytes {
		return ScanTarget{}, fmt.Errorf("engine: skip %s: %d bytes exceeds limit of %d", path, size, s.config.MaxFileBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ScanTarget{}, fmt.Errorf("engine: read %s: %w", path, err)
	}
	if looksBinary(data) {
		return ScanTarget{}, fmt.Errorf("engine: skip %s: binary content", path)
	}
	return ScanTarget{Path: path, Content: string(data)}, nil
}

func (s *Scanner) wantExtension(path string) bool {
	if len(s.config.Extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range s.config.Extensions {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if e == ext {
			return true
		}
	}
	return false
}

// looksBinary applies the usual NUL-byte check to the first 8000 bytes.
func looksBinary(data []byte) bool {
	if len(data) > 8000 {
		data = data[:8000]
	}
	return bytes.IndexByte(data, 0) >= 0
}
