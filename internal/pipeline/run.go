package pipeline

import (
	"context"
	"fmt"

	"github.com/book-expert/corpus-service/internal/core"
	"github.com/book-expert/corpus-service/internal/manifest"
	"github.com/book-expert/logger"
)

// Prepare processes one split end to end: it drains the source through the
// executor, assembles the surviving triples into cuts, and commits them to
// the store under the split's merge policy. Manifest and index writes
// happen strictly after the worker pool has drained, on the calling
// goroutine.
func Prepare(
	ctx context.Context,
	src core.ItemSource,
	executor *Executor,
	store *manifest.Store,
	split string,
	log *logger.Logger,
) error {
	results, err := executor.Run(ctx, src)
	if err != nil {
		return err
	}

	recordings := make([]manifest.Recording, 0, len(results))
	supervisions := make([]manifest.Supervision, 0, len(results))
	indexLines := make([]string, 0, len(results))
	skipped := 0

	for _, result := range results {
		if !result.Kept() {
			skipped++

			continue
		}

		recordings = append(recordings, result.Item.Recording)
		supervisions = append(supervisions, result.Item.Supervision)
		indexLines = append(indexLines, result.Item.IndexLine)
	}

	log.Info(
		"Processed %d items for %s split: %d kept, %d skipped",
		len(results),
		split,
		len(recordings),
		skipped,
	)

	cuts := manifest.Assemble(recordings, supervisions, log)

	commitErr := store.Commit(split, cuts, indexLines)
	if commitErr != nil {
		return fmt.Errorf("failed to commit %s split: %w", split, commitErr)
	}

	log.Info("Committed %d cuts for %s split", len(cuts), split)

	return nil
}
