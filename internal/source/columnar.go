package source

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/book-expert/corpus-service/internal/core"
	"github.com/book-expert/logger"
	"github.com/parquet-go/parquet-go"
)

// ColumnarConfig identifies a local columnar dataset file and the row range
// to expose.
type ColumnarConfig struct {
	Path  string
	Split string
	// ValidationRatio carves the tail of the table off as the validation
	// split. Zero disables range restriction; the whole table is exposed.
	ValidationRatio float64
	MaxItems        int
}

// columnarRow mirrors the audio+transcription table layout produced by
// dataset exports: the audio column is a struct of encoded bytes plus an
// optional origin path.
type columnarRow struct {
	Transcription string `parquet:"transcription"`
	Audio         struct {
		Bytes []byte `parquet:"bytes"`
		Path  string `parquet:"path"`
	} `parquet:"audio"`
}

// ColumnarSource exposes a fully loaded columnar table as an item sequence.
// Rows are served in file order so positional indices are stable.
type ColumnarSource struct {
	rows     []columnarRow
	columns  []string
	log      *logger.Logger
	position int
}

// NewColumnarSource loads the table at cfg.Path. Open or decode failures are
// fatal for the run.
func NewColumnarSource(cfg ColumnarConfig, log *logger.Logger) (*ColumnarSource, error) {
	rows, err := parquet.ReadFile[columnarRow](cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load columnar file '%s': %w", cfg.Path, err)
	}

	columns, err := readColumns(cfg.Path)
	if err != nil {
		return nil, err
	}

	rows = restrictToSplit(rows, cfg.Split, cfg.ValidationRatio)

	if cfg.MaxItems > 0 && len(rows) > cfg.MaxItems {
		log.Info("Limiting to maximum %d items", cfg.MaxItems)

		rows = rows[:cfg.MaxItems]
	}

	log.Info("Loaded %d rows from columnar file '%s'", len(rows), cfg.Path)

	return &ColumnarSource{
		rows:     rows,
		columns:  columns,
		log:      log,
		position: 0,
	}, nil
}

// Next serves the next row as a raw item.
func (s *ColumnarSource) Next(_ context.Context) (core.RawItem, error) {
	if s.position >= len(s.rows) {
		return core.RawItem{}, core.ErrEndOfSource
	}

	row := s.rows[s.position]
	s.position++

	item := core.RawItem{
		Transcript: row.Transcription,
		Audio:      nil,
		AudioBytes: nil,
	}

	if len(row.Audio.Bytes) > 0 {
		item.Audio = &core.AudioPayload{
			Array:        nil,
			SamplingRate: 0,
			Bytes:        row.Audio.Bytes,
			Path:         row.Audio.Path,
			Data:         nil,
			Waveform:     nil,
			Signal:       nil,
			Samples:      nil,
		}
	}

	return item, nil
}

// Close releases the loaded rows.
func (s *ColumnarSource) Close() error {
	s.rows = nil

	return nil
}

// Describe reports the exposed row count and the file's top-level schema
// columns, for inspection logging before a run.
func (s *ColumnarSource) Describe() (int, []string) {
	return len(s.rows), s.columns
}

// restrictToSplit carves the table into a head (train) and tail
// (validation) range by the given ratio. Split names other than train and
// validation see the whole table.
func restrictToSplit(rows []columnarRow, split string, validationRatio float64) []columnarRow {
	if validationRatio <= 0 || validationRatio >= 1 {
		return rows
	}

	validationRows := int(validationRatio * float64(len(rows)))
	boundary := len(rows) - validationRows

	switch strings.ToLower(split) {
	case "train":
		return rows[:boundary]
	case "validation":
		return rows[boundary:]
	default:
		return rows
	}
}

func readColumns(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open columnar file '%s': %w", path, err)
	}

	defer func() {
		_ = file.Close()
	}()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat columnar file '%s': %w", path, err)
	}

	parquetFile, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to read columnar schema from '%s': %w", path, err)
	}

	fields := parquetFile.Schema().Fields()
	columns := make([]string, 0, len(fields))

	for _, field := range fields {
		columns = append(columns, field.Name())
	}

	return columns, nil
}
