package source_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/corpus-service/internal/core"
	"github.com/book-expert/corpus-service/internal/source"
	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testRow mirrors the table layout the columnar source expects.
type testRow struct {
	Transcription string `parquet:"transcription"`
	Audio         struct {
		Bytes []byte `parquet:"bytes"`
		Path  string `parquet:"path"`
	} `parquet:"audio"`
}

func writeParquetFile(t *testing.T, rows []testRow) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "dataset.parquet")

	file, err := os.Create(path)
	require.NoError(t, err)

	writer := parquet.NewGenericWriter[testRow](file)

	_, err = writer.Write(rows)
	require.NoError(t, err)

	require.NoError(t, writer.Close())
	require.NoError(t, file.Close())

	return path
}

func makeTestRows(transcripts ...string) []testRow {
	rows := make([]testRow, 0, len(transcripts))

	for _, transcript := range transcripts {
		row := testRow{}
		row.Transcription = transcript
		row.Audio.Bytes = []byte{0x01, 0x02}
		row.Audio.Path = "origin/" + transcript + ".wav"
		rows = append(rows, row)
	}

	return rows
}

func drain(t *testing.T, itemSource core.ItemSource) []core.RawItem {
	t.Helper()

	var items []core.RawItem

	for {
		item, err := itemSource.Next(context.Background())
		if err != nil {
			require.ErrorIs(t, err, core.ErrEndOfSource)

			break
		}

		items = append(items, item)
	}

	return items
}

func TestColumnarSource_ServesRowsInOrder(t *testing.T) {
	t.Parallel()

	path := writeParquetFile(t, makeTestRows("one", "two", "three"))

	columnarSource, err := source.NewColumnarSource(source.ColumnarConfig{
		Path: path,
	}, newTestLogger(t))
	require.NoError(t, err)

	items := drain(t, columnarSource)

	require.Len(t, items, 3)
	assert.Equal(t, "one", items[0].Transcript)
	assert.Equal(t, "three", items[2].Transcript)
	require.NotNil(t, items[0].Audio)
	assert.Equal(t, []byte{0x01, 0x02}, items[0].Audio.Bytes)
}

func TestColumnarSource_SplitRanges(t *testing.T) {
	t.Parallel()

	rows := makeTestRows("r1", "r2", "r3", "r4", "r5", "r6", "r7", "r8", "r9", "r10")
	path := writeParquetFile(t, rows)

	trainSource, err := source.NewColumnarSource(source.ColumnarConfig{
		Path:            path,
		Split:           "train",
		ValidationRatio: 0.2,
	}, newTestLogger(t))
	require.NoError(t, err)

	validationSource, err := source.NewColumnarSource(source.ColumnarConfig{
		Path:            path,
		Split:           "validation",
		ValidationRatio: 0.2,
	}, newTestLogger(t))
	require.NoError(t, err)

	trainItems := drain(t, trainSource)
	validationItems := drain(t, validationSource)

	require.Len(t, trainItems, 8)
	require.Len(t, validationItems, 2)
	assert.Equal(t, "r1", trainItems[0].Transcript)
	assert.Equal(t, "r9", validationItems[0].Transcript)
}

func TestColumnarSource_HonorsMaxItemCap(t *testing.T) {
	t.Parallel()

	path := writeParquetFile(t, makeTestRows("one", "two", "three"))

	columnarSource, err := source.NewColumnarSource(source.ColumnarConfig{
		Path:     path,
		MaxItems: 2,
	}, newTestLogger(t))
	require.NoError(t, err)

	items := drain(t, columnarSource)
	assert.Len(t, items, 2)
}

func TestColumnarSource_Describe(t *testing.T) {
	t.Parallel()

	path := writeParquetFile(t, makeTestRows("one", "two"))

	columnarSource, err := source.NewColumnarSource(source.ColumnarConfig{
		Path: path,
	}, newTestLogger(t))
	require.NoError(t, err)

	count, columns := columnarSource.Describe()

	assert.Equal(t, 2, count)
	assert.Contains(t, columns, "transcription")
	assert.Contains(t, columns, "audio")
}

func TestNewColumnarSource_FailsFastOnMissingFile(t *testing.T) {
	t.Parallel()

	_, err := source.NewColumnarSource(source.ColumnarConfig{
		Path: filepath.Join(t.TempDir(), "missing.parquet"),
	}, newTestLogger(t))

	require.Error(t, err)
}
