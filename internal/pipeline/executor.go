package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/book-expert/corpus-service/internal/core"
	"github.com/book-expert/logger"
)

// Worker pool sizing constants. Denoising holds the whole separation model
// in memory, so it is always serialized; without it the pool takes half the
// CPUs up to a small cap.
const (
	maxDefaultWorkers = 4
	cpuDivisor        = 2
)

// WorkerCount resolves the effective pool size from the advisory hint and
// the denoising policy. The hint can shrink the pool but never grow it past
// the policy limit.
func WorkerCount(hint int, denoisingEnabled bool) int {
	if denoisingEnabled {
		return 1
	}

	limit := runtime.NumCPU() / cpuDivisor
	if limit > maxDefaultWorkers {
		limit = maxDefaultWorkers
	}

	if limit < 1 {
		limit = 1
	}

	if hint > 0 && hint < limit {
		return hint
	}

	return limit
}

// Executor runs the item processor over an item source with a fixed-size
// worker pool. Submission follows source order; collection order is
// whatever the pool yields.
type Executor struct {
	processor *Processor
	workers   int
	log       *logger.Logger
}

// NewExecutor creates an Executor with the given pool size.
func NewExecutor(processor *Processor, workers int, log *logger.Logger) *Executor {
	if workers < 1 {
		workers = 1
	}

	return &Executor{
		processor: processor,
		workers:   workers,
		log:       log,
	}
}

// Run drains the source, submitting every item eagerly, and blocks until
// all results are collected. Per-item failures become skip results; only a
// source read failure is returned as an error.
func (e *Executor) Run(ctx context.Context, src core.ItemSource) ([]Result, error) {
	var (
		waitGroup sync.WaitGroup
		mutex     sync.Mutex
		results   []Result
	)

	// Buffered-channel semaphore bounds concurrency.
	workerPool := make(chan struct{}, e.workers)

	index := 0

	for {
		item, err := src.Next(ctx)
		if errors.Is(err, core.ErrEndOfSource) {
			break
		}

		if err != nil {
			waitGroup.Wait()

			return nil, fmt.Errorf("failed to read from item source: %w", err)
		}

		index++

		waitGroup.Add(1)

		go func(itemIndex int, raw core.RawItem) {
			defer waitGroup.Done()

			workerPool <- struct{}{}

			defer func() { <-workerPool }()

			result := e.processGuarded(ctx, itemIndex, raw)

			mutex.Lock()

			results = append(results, result)

			mutex.Unlock()

			if result.Kept() {
				e.log.Info("Processed item-%d", itemIndex)
			}
		}(index, item)
	}

	waitGroup.Wait()
	close(workerPool)

	return results, nil
}

// processGuarded converts a panic inside single-item processing into a skip
// result so sibling items keep running.
func (e *Executor) processGuarded(
	ctx context.Context,
	index int,
	item core.RawItem,
) (result Result) {
	defer func() {
		if recovered := recover(); recovered != nil {
			e.log.Error("Error processing item-%d: %v", index, recovered)

			result = Result{
				Index:      index,
				Item:       nil,
				SkipReason: fmt.Sprintf("panic: %v", recovered),
			}
		}
	}()

	return e.processor.Process(ctx, index, item)
}
