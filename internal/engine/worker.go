package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/0x6d61/sec360/internal/catalog"
	"github.com/0x6d61/sec360/internal/detector"
	"github.com/0x6d61/sec360/internal/scoring"
)

// job is a single file to detect and score.
type job struct {
	index  int
	target ScanTarget
}

// jobResult carries a finished job back to the scanner.
type jobResult struct {
	index int
	file  FileResult
	err   error
}

// workerPool runs detection across multiple workers.
type workerPool struct {
	workers int
	jobs    chan job
	results chan jobResult
	wg      sync.WaitGroup
	logger  *slog.Logger
}

// newWorkerPool creates a pool with the given number of workers.
// The jobs channel is buffered at workers*2 to allow some pipelining.
func newWorkerPool(workers int, logger *slog.Logger) *workerPool {
	if workers <= 0 {
		workers = 1
	}
	return &workerPool{
		workers: workers,
		jobs:    make(chan job, workers*2),
		results: make(chan jobResult, workers*2),
		logger:  logger,
	}
}

// start launches all worker goroutines.
func (p *workerPool) start(ctx context.Context, cat *catalog.Catalog, scorer *scoring.Scorer) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, cat, scorer)
	}
}

func (p *workerPool) worker(ctx context.Context, cat *catalog.Catalog, scorer *scoring.Scorer) {
	defer p.wg.Done()

	for j := range p.jobs {
		// Recover from panics so one bad file does not crash the pool.
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("worker recovered from panic",
						"path", j.target.Path,
						"panic", fmt.Sprintf("%v", r),
					)
					p.results <- jobResult{
						index: j.index,
						err:   fmt.Errorf("engine: scan %s: panic: %v", j.target.Path, r),
					}
				}
			}()

			if ctx.Err() != nil {
				return
			}

			res := detector.Detect(j.target.Content, cat)
			bd := scorer.Score(res, scoring.SessionStats{})
			p.logger.Debug("file scanned",
				"path", j.target.Path,
				"flags", len(res.Flags),
				"score", bd.FinalScore,
			)

			p.results <- jobResult{
				index: j.index,
				file: FileResult{
					Path:        j.target.Path,
					Fingerprint: detector.Fingerprint(j.target.Content),
					Detection:   res,
					Score:       bd,
				},
			}
		}()
	}
}

// submit adds a job to the queue. It blocks if the jobs channel is full.
func (p *workerPool) submit(j job) {
	p.jobs <- j
}

// close signals that no more jobs will be submitted, then waits for all
// workers to finish and closes the results channel.
func (p *workerPool) close() {
	close(p.jobs)
	p.wg.Wait()
	close(p.results)
}
