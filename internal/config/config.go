// Package config provides the configuration structure for the corpus-service.
package config

import (
	"fmt"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// NATSConfig holds the configuration for the streaming dataset source.
type NATSConfig struct {
	URL                 string `toml:"url"`
	DatasetStreamName   string `toml:"dataset_stream_name"`
	DatasetSubject      string `toml:"dataset_subject"`
	DatasetConsumerName string `toml:"dataset_consumer_name"`
	FetchWaitSeconds    int    `toml:"fetch_wait_seconds"`
}

// PipelineConfig holds the corpus preparation settings.
type PipelineConfig struct {
	CorpusName      string  `toml:"corpus_name"`
	Split           string  `toml:"split"`
	Workers         int     `toml:"workers"`
	MaxItems        int     `toml:"max_items"`
	EnableDenoising bool    `toml:"enable_denoising"`
	ParquetFile     string  `toml:"parquet_file"`
	ValidationRatio float64 `toml:"validation_ratio"`
}

// DenoiseConfig holds the source-separation model settings.
type DenoiseConfig struct {
	BinaryPath    string `toml:"binary_path"`
	PrimaryModel  string `toml:"primary_model"`
	FallbackModel string `toml:"fallback_model"`
	VocalsIndex   int    `toml:"vocals_index"`
	MaxSeconds    int    `toml:"max_seconds"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	OutputDir   string `toml:"output_dir"`
	AudioDir    string `toml:"audio_dir"`
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	NATS     NATSConfig     `toml:"nats"`
	Pipeline PipelineConfig `toml:"pipeline"`
	Denoise  DenoiseConfig  `toml:"denoise"`
	Paths    PathsConfig    `toml:"paths"`
}

// Load loads the configuration for the corpus-service.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return &cfg, nil
}
