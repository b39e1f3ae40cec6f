package denoise

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/book-expert/corpus-service/internal/wavio"
)

// Static errors.
var (
	// ErrModelNameEmpty indicates that no separation model name was given.
	ErrModelNameEmpty = errors.New("separation model name cannot be empty")
	// ErrNoStemsProduced indicates that the binary produced no stem files.
	ErrNoStemsProduced = errors.New("separation produced no stems")
)

// stemNames is the on-disk stem layout of the standard four-source
// separation models, in model source order.
var stemNames = [...]string{"drums", "bass", "other", "vocals"}

// SubprocessSeparator implements core.SourceSeparator by invoking a
// demucs-style separation binary: the input is written to a temporary
// waveform file, the binary separates it into per-stem files, and the stems
// are decoded back into sample buffers.
type SubprocessSeparator struct {
	binaryPath string
	model      string
}

// NewSubprocessSeparator creates a separator for the given binary and model.
// The binary must be resolvable on the host; this is the "model loading"
// step that the adapter may fall back from.
func NewSubprocessSeparator(binaryPath, model string) (*SubprocessSeparator, error) {
	if model == "" {
		return nil, ErrModelNameEmpty
	}

	resolved, err := exec.LookPath(binaryPath)
	if err != nil {
		return nil, fmt.Errorf("separation binary not found: %w", err)
	}

	return &SubprocessSeparator{
		binaryPath: resolved,
		model:      model,
	}, nil
}

// Separate runs the separation binary over the given channels and returns
// the decoded stems in model source order.
func (s *SubprocessSeparator) Separate(
	ctx context.Context,
	channels [][]float64,
	sampleRate int,
) ([][][]float64, error) {
	workDir, err := os.MkdirTemp("", "corpus-denoise-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create separation work directory: %w", err)
	}

	defer func() {
		_ = os.RemoveAll(workDir)
	}()

	inputPath := filepath.Join(workDir, "input.wav")

	writeErr := wavio.WriteChannelsFile(inputPath, channels, sampleRate)
	if writeErr != nil {
		return nil, fmt.Errorf("failed to write separation input: %w", writeErr)
	}

	args := []string{
		"-n", s.model,
		"-o", workDir,
		inputPath,
	}

	// #nosec G204 -- binary path is resolved at construction, model name is configured.
	cmd := exec.CommandContext(ctx, s.binaryPath, args...)

	output, runErr := cmd.CombinedOutput()
	if runErr != nil {
		return nil, fmt.Errorf(
			"separation binary execution failed: %w - output: %s",
			runErr,
			string(output),
		)
	}

	return s.collectStems(workDir)
}

// collectStems decodes the stem files the binary wrote. Missing stems are
// tolerated (smaller models emit fewer sources); producing none is an error.
func (s *SubprocessSeparator) collectStems(workDir string) ([][][]float64, error) {
	stemDir := filepath.Join(workDir, s.model, "input")
	stems := make([][][]float64, 0, len(stemNames))

	for _, name := range stemNames {
		stemPath := filepath.Join(stemDir, name+".wav")

		_, statErr := os.Stat(stemPath)
		if statErr != nil {
			continue
		}

		stemChannels, _, decodeErr := wavio.DecodeChannelsFile(stemPath)
		if decodeErr != nil {
			return nil, fmt.Errorf("failed to decode stem '%s': %w", name, decodeErr)
		}

		stems = append(stems, stemChannels)
	}

	if len(stems) == 0 {
		return nil, ErrNoStemsProduced
	}

	return stems, nil
}
