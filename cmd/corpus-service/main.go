// main package for the corpus-service
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/book-expert/corpus-service/internal/config"
	"github.com/book-expert/corpus-service/internal/core"
	"github.com/book-expert/corpus-service/internal/denoise"
	"github.com/book-expert/corpus-service/internal/identity"
	"github.com/book-expert/corpus-service/internal/manifest"
	"github.com/book-expert/corpus-service/internal/pipeline"
	"github.com/book-expert/corpus-service/internal/source"
	"github.com/book-expert/logger"
)

func setupLogger(logPath string) (*logger.Logger, error) {
	log, err := logger.New(logPath, "corpus-service.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

// applyFlags overlays command-line overrides onto the loaded configuration.
func applyFlags(cfg *config.Config) {
	flag.StringVar(&cfg.Pipeline.Split, "split", cfg.Pipeline.Split, "dataset split to prepare")
	flag.StringVar(&cfg.Pipeline.ParquetFile, "parquet-file", cfg.Pipeline.ParquetFile,
		"read items from a local parquet file instead of the dataset stream")
	flag.IntVar(&cfg.Pipeline.MaxItems, "max-items", cfg.Pipeline.MaxItems,
		"cap the number of items processed (0 = no cap)")
	flag.IntVar(&cfg.Pipeline.Workers, "workers", cfg.Pipeline.Workers,
		"advisory worker pool size hint")
	flag.BoolVar(&cfg.Pipeline.EnableDenoising, "enable-denoising", cfg.Pipeline.EnableDenoising,
		"isolate vocals with the source-separation model before persisting")
	flag.Parse()
}

// buildSource selects the local columnar source when a parquet file is
// configured and the remote streaming source otherwise.
func buildSource(cfg *config.Config, log *logger.Logger) (core.ItemSource, error) {
	if cfg.Pipeline.ParquetFile != "" {
		columnarSource, err := source.NewColumnarSource(source.ColumnarConfig{
			Path:            cfg.Pipeline.ParquetFile,
			Split:           cfg.Pipeline.Split,
			ValidationRatio: cfg.Pipeline.ValidationRatio,
			MaxItems:        cfg.Pipeline.MaxItems,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to open columnar source: %w", err)
		}

		count, columns := columnarSource.Describe()
		log.Info("Columnar source ready: %d rows, columns: %v", count, columns)

		return columnarSource, nil
	}

	streamingSource, err := source.NewStreamingSource(source.StreamingConfig{
		URL:              cfg.NATS.URL,
		Stream:           cfg.NATS.DatasetStreamName,
		Subject:          cfg.NATS.DatasetSubject,
		Durable:          cfg.NATS.DatasetConsumerName,
		FetchWaitSeconds: cfg.NATS.FetchWaitSeconds,
		MaxItems:         cfg.Pipeline.MaxItems,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open streaming source: %w", err)
	}

	return streamingSource, nil
}

func run() error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir())
	if err != nil {
		// If bootstrap logger fails, we can only print to stderr
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	// 2. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	applyFlags(cfg)

	// 3. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	finalLog.System(
		"Corpus-Service preparing '%s' split of corpus '%s'",
		cfg.Pipeline.Split,
		cfg.Pipeline.CorpusName,
	)

	return prepare(cfg, finalLog)
}

func prepare(cfg *config.Config, log *logger.Logger) error {
	itemSource, err := buildSource(cfg, log)
	if err != nil {
		return err
	}

	defer func() {
		closeErr := itemSource.Close()
		if closeErr != nil {
			log.Warn("Failed to close item source: %v", closeErr)
		}
	}()

	store, err := manifest.NewStore(cfg.Paths.OutputDir, cfg.Pipeline.CorpusName, log)
	if err != nil {
		return fmt.Errorf("failed to create manifest store: %w", err)
	}

	denoiser := denoise.New(denoise.Config{
		BinaryPath:    cfg.Denoise.BinaryPath,
		PrimaryModel:  cfg.Denoise.PrimaryModel,
		FallbackModel: cfg.Denoise.FallbackModel,
		VocalsIndex:   cfg.Denoise.VocalsIndex,
		MaxSeconds:    cfg.Denoise.MaxSeconds,
	}, log)

	audioDir := filepath.Join(cfg.Paths.AudioDir, cfg.Pipeline.Split)
	processor := pipeline.NewProcessor(
		audioDir,
		denoiser,
		cfg.Pipeline.EnableDenoising,
		identity.NewGenerator(),
		log,
	)

	workers := pipeline.WorkerCount(cfg.Pipeline.Workers, cfg.Pipeline.EnableDenoising)
	log.Info("Using %d workers for audio processing", workers)

	executor := pipeline.NewExecutor(processor, workers, log)

	return pipeline.Prepare(
		context.Background(),
		itemSource,
		executor,
		store,
		cfg.Pipeline.Split,
		log,
	)
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
