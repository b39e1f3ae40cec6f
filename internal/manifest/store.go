package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/book-expert/logger"
	"github.com/klauspost/compress/gzip"
)

// File layout constants.
const (
	manifestFileFormat = "%s_cuts_%s.jsonl.gz"
	indexDirName       = "tsv"
	indexFileExt       = ".tsv"
	dirPermissions     = 0o750
	filePermissions    = 0o600
)

// Splits that accumulate across runs. Every other split name gets fresh
// snapshot semantics: each run overwrites the previous artifacts.
const (
	splitTrain      = "train"
	splitValidation = "validation"
)

// ErrCorpusNameEmpty indicates that the store was created without a corpus name.
var ErrCorpusNameEmpty = errors.New("corpus name cannot be empty")

// Store persists cut manifests and text index files under an output
// directory, applying the split-based merge policy on commit. It is not safe
// for concurrent use; the pipeline commits strictly after the worker pool
// has drained.
type Store struct {
	outputDir string
	corpus    string
	log       *logger.Logger
}

// NewStore creates a Store rooted at outputDir for the named corpus,
// creating the output and index directories as needed.
func NewStore(outputDir, corpus string, log *logger.Logger) (*Store, error) {
	if corpus == "" {
		return nil, ErrCorpusNameEmpty
	}

	dirErr := os.MkdirAll(filepath.Join(outputDir, indexDirName), dirPermissions)
	if dirErr != nil {
		return nil, fmt.Errorf("failed to create output directories: %w", dirErr)
	}

	return &Store{
		outputDir: outputDir,
		corpus:    corpus,
		log:       log,
	}, nil
}

// ManifestPath returns the manifest artifact path for a split.
func (s *Store) ManifestPath(split string) string {
	return filepath.Join(s.outputDir, fmt.Sprintf(manifestFileFormat, s.corpus, split))
}

// IndexPath returns the text index path for a split.
func (s *Store) IndexPath(split string) string {
	return filepath.Join(s.outputDir, indexDirName, split+indexFileExt)
}

// Commit persists the cuts and index lines for one split.
//
// Merge policy: a fresh split is written directly. An existing train or
// validation manifest is merged - incoming cuts whose id already exists are
// skipped and the union is written back atomically. Any other existing split
// is overwritten unconditionally. The text index follows the same branch:
// append-with-create for train/validation, overwrite otherwise.
func (s *Store) Commit(split string, cuts []Cut, indexLines []string) error {
	manifestErr := s.commitManifest(split, cuts)
	if manifestErr != nil {
		return manifestErr
	}

	indexErr := s.writeIndex(split, indexLines)
	if indexErr != nil {
		return indexErr
	}

	return nil
}

func (s *Store) commitManifest(split string, cuts []Cut) error {
	path := s.ManifestPath(split)

	_, statErr := os.Stat(path)
	exists := statErr == nil

	switch {
	case !exists:
		s.log.Info("Creating new manifest with %d cuts: %s", len(cuts), path)

		return writeCuts(path, cuts)
	case isMergeSplit(split):
		return s.mergeManifest(path, cuts)
	default:
		s.log.Info("Overwriting manifest for %s split: %s", split, path)

		return writeCuts(path, cuts)
	}
}

func (s *Store) mergeManifest(path string, cuts []Cut) error {
	s.log.Info("Appending cuts to existing manifest: %s", path)

	existing, err := ReadCuts(path)
	if err != nil {
		return fmt.Errorf("failed to load existing manifest: %w", err)
	}

	existingIDs := make(map[string]struct{}, len(existing))
	for _, cut := range existing {
		existingIDs[cut.ID] = struct{}{}
	}

	fresh := make([]Cut, 0, len(cuts))

	for _, cut := range cuts {
		_, duplicate := existingIDs[cut.ID]
		if duplicate {
			continue
		}

		fresh = append(fresh, cut)
	}

	skipped := len(cuts) - len(fresh)
	if skipped > 0 {
		s.log.Warn("Skipped %d cuts with duplicate ids", skipped)
	}

	if len(fresh) == 0 {
		s.log.Info("No new cuts to add (all were duplicates)")

		return nil
	}

	combined := append(existing, fresh...)

	writeErr := writeCuts(path, combined)
	if writeErr != nil {
		return writeErr
	}

	s.log.Info(
		"Added %d new cuts. Total cuts in manifest: %d",
		len(fresh),
		len(combined),
	)

	return nil
}

func (s *Store) writeIndex(split string, lines []string) error {
	path := s.IndexPath(split)

	flags := os.O_CREATE | os.O_WRONLY
	if isMergeSplit(split) {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	s.log.Info("Writing %d lines to index file: %s", len(lines), path)

	file, err := os.OpenFile(path, flags, filePermissions)
	if err != nil {
		return fmt.Errorf("failed to open index file '%s': %w", path, err)
	}

	var writeErr error

	for _, line := range lines {
		_, writeErr = io.WriteString(file, line)
		if writeErr != nil {
			break
		}
	}

	closeErr := file.Close()
	if writeErr != nil {
		return fmt.Errorf("failed to write index file '%s': %w", path, writeErr)
	}

	if closeErr != nil {
		return fmt.Errorf("failed to close index file '%s': %w", path, closeErr)
	}

	return nil
}

// ReadCuts loads a manifest artifact into memory.
func ReadCuts(path string) ([]Cut, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest '%s': %w", path, err)
	}

	defer func() {
		_ = file.Close()
	}()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip stream for '%s': %w", path, err)
	}

	decoder := json.NewDecoder(gzReader)

	var cuts []Cut

	for {
		var cut Cut

		decodeErr := decoder.Decode(&cut)
		if errors.Is(decodeErr, io.EOF) {
			break
		}

		if decodeErr != nil {
			return nil, fmt.Errorf("failed to decode cut from '%s': %w", path, decodeErr)
		}

		cuts = append(cuts, cut)
	}

	closeErr := gzReader.Close()
	if closeErr != nil {
		return cuts, fmt.Errorf("failed to close gzip stream for '%s': %w", path, closeErr)
	}

	return cuts, nil
}

// writeCuts writes the cut collection with atomic replace semantics: the
// payload lands in a temp file first and is renamed over the target, so a
// failed run never corrupts a previously committed manifest.
func writeCuts(path string, cuts []Cut) error {
	tempFile, err := os.CreateTemp(filepath.Dir(path), ".manifest-*.jsonl.gz")
	if err != nil {
		return fmt.Errorf("failed to create temp manifest: %w", err)
	}

	encodeErr := encodeCuts(tempFile, cuts)

	closeErr := tempFile.Close()
	if encodeErr != nil {
		_ = os.Remove(tempFile.Name())

		return encodeErr
	}

	if closeErr != nil {
		_ = os.Remove(tempFile.Name())

		return fmt.Errorf("failed to close temp manifest: %w", closeErr)
	}

	renameErr := os.Rename(tempFile.Name(), path)
	if renameErr != nil {
		_ = os.Remove(tempFile.Name())

		return fmt.Errorf("failed to replace manifest '%s': %w", path, renameErr)
	}

	return nil
}

func encodeCuts(file *os.File, cuts []Cut) error {
	gzWriter := gzip.NewWriter(file)
	encoder := json.NewEncoder(gzWriter)

	for _, cut := range cuts {
		encodeErr := encoder.Encode(cut)
		if encodeErr != nil {
			_ = gzWriter.Close()

			return fmt.Errorf("failed to encode cut '%s': %w", cut.ID, encodeErr)
		}
	}

	closeErr := gzWriter.Close()
	if closeErr != nil {
		return fmt.Errorf("failed to finalize gzip stream: %w", closeErr)
	}

	return nil
}

func isMergeSplit(split string) bool {
	lower := strings.ToLower(split)

	return lower == splitTrain || lower == splitValidation
}
