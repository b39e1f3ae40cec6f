// Package manifest_test tests cut assembly and the split merge policy.
package manifest_test

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/book-expert/corpus-service/internal/manifest"
	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)

	return log
}

func makeRecording(id string) manifest.Recording {
	return manifest.Recording{
		ID:         id,
		Path:       "/corpus/audio/" + id + ".wav",
		SampleRate: 16000,
		NumSamples: 16000,
		Duration:   1.0,
		Channels:   1,
	}
}

func makeSupervision(id string) manifest.Supervision {
	return manifest.Supervision{
		ID:          id,
		RecordingID: id,
		Start:       0,
		Duration:    1.0,
		Text:        "transcript for " + id,
		Speaker:     "speaker-" + id,
	}
}

func makeCuts(ids ...string) []manifest.Cut {
	cuts := make([]manifest.Cut, 0, len(ids))
	for _, id := range ids {
		cuts = append(cuts, manifest.Cut{
			ID:           id,
			Start:        0,
			Duration:     1.0,
			Channel:      0,
			Recording:    makeRecording(id),
			Supervisions: []manifest.Supervision{makeSupervision(id)},
		})
	}

	return cuts
}

func cutIDs(cuts []manifest.Cut) []string {
	ids := make([]string, 0, len(cuts))
	for _, cut := range cuts {
		ids = append(ids, cut.ID)
	}

	return ids
}

func TestAssemble_PairsRecordingsWithSupervisions(t *testing.T) {
	t.Parallel()

	recordings := []manifest.Recording{makeRecording("a"), makeRecording("b")}
	supervisions := []manifest.Supervision{makeSupervision("a"), makeSupervision("b")}

	cuts := manifest.Assemble(recordings, supervisions, newTestLogger(t))

	require.Len(t, cuts, 2)
	assert.Equal(t, "a", cuts[0].ID)
	assert.Equal(t, "a", cuts[0].Recording.ID)
	require.Len(t, cuts[0].Supervisions, 1)
	assert.Equal(t, "a", cuts[0].Supervisions[0].ID)
}

func TestAssemble_DropsOrphanSupervisions(t *testing.T) {
	t.Parallel()

	recordings := []manifest.Recording{makeRecording("a")}
	supervisions := []manifest.Supervision{makeSupervision("a"), makeSupervision("ghost")}

	cuts := manifest.Assemble(recordings, supervisions, newTestLogger(t))

	require.Len(t, cuts, 1)
	assert.Equal(t, "a", cuts[0].ID)
}

func TestAssemble_DropsMalformedRecordings(t *testing.T) {
	t.Parallel()

	broken := makeRecording("b")
	broken.Duration = 0

	recordings := []manifest.Recording{makeRecording("a"), broken}
	supervisions := []manifest.Supervision{makeSupervision("a"), makeSupervision("b")}

	cuts := manifest.Assemble(recordings, supervisions, newTestLogger(t))

	require.Len(t, cuts, 1)
	assert.Equal(t, "a", cuts[0].ID)
}

func TestAssemble_DropsDuplicateSpans(t *testing.T) {
	t.Parallel()

	recordings := []manifest.Recording{makeRecording("a")}
	supervisions := []manifest.Supervision{makeSupervision("a"), makeSupervision("a")}

	cuts := manifest.Assemble(recordings, supervisions, newTestLogger(t))

	require.Len(t, cuts, 1)
}

func TestStore_CommitFreshSplit(t *testing.T) {
	t.Parallel()

	store, err := manifest.NewStore(t.TempDir(), "demo", newTestLogger(t))
	require.NoError(t, err)

	cuts := makeCuts("a", "b")
	err = store.Commit("train", cuts, []string{"a\ttext a\t/p/a.wav\n", "b\ttext b\t/p/b.wav\n"})
	require.NoError(t, err)

	loaded, err := manifest.ReadCuts(store.ManifestPath("train"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, cutIDs(loaded))

	index, err := os.ReadFile(store.IndexPath("train"))
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(index), "\n"))
}

func TestStore_TrainMergeAcrossDisjointRuns(t *testing.T) {
	t.Parallel()

	store, err := manifest.NewStore(t.TempDir(), "demo", newTestLogger(t))
	require.NoError(t, err)

	require.NoError(t, store.Commit("train", makeCuts("a", "b"), nil))
	require.NoError(t, store.Commit("train", makeCuts("c", "d"), nil))

	loaded, err := manifest.ReadCuts(store.ManifestPath("train"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, cutIDs(loaded))
}

func TestStore_TrainMergeDeduplicatesIdenticalRun(t *testing.T) {
	t.Parallel()

	store, err := manifest.NewStore(t.TempDir(), "demo", newTestLogger(t))
	require.NoError(t, err)

	cuts := makeCuts("a", "b", "c")
	require.NoError(t, store.Commit("train", cuts, nil))
	require.NoError(t, store.Commit("train", cuts, nil))

	loaded, err := manifest.ReadCuts(store.ManifestPath("train"))
	require.NoError(t, err)
	assert.Len(t, loaded, 3)
}

func TestStore_ValidationSplitAlsoMerges(t *testing.T) {
	t.Parallel()

	store, err := manifest.NewStore(t.TempDir(), "demo", newTestLogger(t))
	require.NoError(t, err)

	require.NoError(t, store.Commit("validation", makeCuts("a"), nil))
	require.NoError(t, store.Commit("validation", makeCuts("a", "b"), nil))

	loaded, err := manifest.ReadCuts(store.ManifestPath("validation"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, cutIDs(loaded))
}

func TestStore_CustomSplitOverwrites(t *testing.T) {
	t.Parallel()

	store, err := manifest.NewStore(t.TempDir(), "demo", newTestLogger(t))
	require.NoError(t, err)

	require.NoError(t, store.Commit("custom_eval", makeCuts("a", "b"), []string{"a\tx\t/p\n"}))
	require.NoError(t, store.Commit("custom_eval", makeCuts("z"), []string{"z\ty\t/p\n"}))

	loaded, err := manifest.ReadCuts(store.ManifestPath("custom_eval"))
	require.NoError(t, err)
	assert.Equal(t, []string{"z"}, cutIDs(loaded))

	index, err := os.ReadFile(store.IndexPath("custom_eval"))
	require.NoError(t, err)
	assert.Equal(t, "z\ty\t/p\n", string(index))
}

func TestStore_IndexAppendsForTrain(t *testing.T) {
	t.Parallel()

	store, err := manifest.NewStore(t.TempDir(), "demo", newTestLogger(t))
	require.NoError(t, err)

	require.NoError(t, store.Commit("train", makeCuts("a"), []string{"a\tx\t/p\n"}))
	require.NoError(t, store.Commit("train", makeCuts("b"), []string{"b\ty\t/p\n"}))

	index, err := os.ReadFile(store.IndexPath("train"))
	require.NoError(t, err)
	assert.Equal(t, "a\tx\t/p\nb\ty\t/p\n", string(index))
}

func TestStore_ManifestPathLayout(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := manifest.NewStore(dir, "vlsp", newTestLogger(t))
	require.NoError(t, err)

	assert.Equal(
		t,
		fmt.Sprintf("%s/vlsp_cuts_train.jsonl.gz", dir),
		store.ManifestPath("train"),
	)
	assert.Equal(
		t,
		fmt.Sprintf("%s/tsv/train.tsv", dir),
		store.IndexPath("train"),
	)
}

func TestNewStore_RequiresCorpusName(t *testing.T) {
	t.Parallel()

	_, err := manifest.NewStore(t.TempDir(), "", newTestLogger(t))
	require.ErrorIs(t, err, manifest.ErrCorpusNameEmpty)
}
