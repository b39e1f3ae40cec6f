// Package pipeline runs corpus items through validation, optional
// denoising, and persistence, and orchestrates the concurrent preparation of
// one dataset split.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/book-expert/corpus-service/internal/core"
	"github.com/book-expert/corpus-service/internal/identity"
	"github.com/book-expert/corpus-service/internal/manifest"
	"github.com/book-expert/corpus-service/internal/wavio"
	"github.com/book-expert/logger"
)

// defaultSampleRate is substituted when a record carries a non-positive
// sample rate.
const defaultSampleRate = 16000

// wavExtension is the persisted audio file extension.
const wavExtension = ".wav"

// ProcessedItem ties one kept item's manifest entries and index line
// together. The three parts are mutually consistent; no ordering guarantee
// exists across items.
type ProcessedItem struct {
	Recording   manifest.Recording
	Supervision manifest.Supervision
	IndexLine   string
}

// Result is the outcome of processing one item: either a ProcessedItem or a
// skip reason. Failures are values, never propagated errors, so one bad
// item cannot abort the run.
type Result struct {
	Index      int
	Item       *ProcessedItem
	SkipReason string
}

// Kept reports whether the item produced output.
func (r Result) Kept() bool {
	return r.Item != nil
}

// Processor converts one raw record into a persisted recording plus its
// manifest entries.
type Processor struct {
	audioDir         string
	denoiser         core.Denoiser
	denoisingEnabled bool
	ids              *identity.Generator
	log              *logger.Logger
}

// NewProcessor creates a Processor writing audio into audioDir.
func NewProcessor(
	audioDir string,
	denoiser core.Denoiser,
	denoisingEnabled bool,
	ids *identity.Generator,
	log *logger.Logger,
) *Processor {
	return &Processor{
		audioDir:         audioDir,
		denoiser:         denoiser,
		denoisingEnabled: denoisingEnabled,
		ids:              ids,
		log:              log,
	}
}

// Process runs the per-item pipeline: validate, optionally denoise, persist
// audio, compute duration, and emit the manifest triple. Every failure is
// converted into a skip result and logged with the item index.
func (p *Processor) Process(ctx context.Context, index int, item core.RawItem) Result {
	processed, skipReason := p.process(ctx, index, item)
	if skipReason != "" {
		p.log.Warn("Skipping item-%d: %s", index, skipReason)

		return Result{Index: index, Item: nil, SkipReason: skipReason}
	}

	return Result{Index: index, Item: processed, SkipReason: ""}
}

func (p *Processor) process(
	ctx context.Context,
	index int,
	item core.RawItem,
) (*ProcessedItem, string) {
	transcript := strings.TrimSpace(item.Transcript)
	if transcript == "" {
		return nil, "empty transcript"
	}

	samples, sampleRate, skipReason := p.resolveAudio(index, item)
	if skipReason != "" {
		return nil, skipReason
	}

	if len(samples) == 0 {
		return nil, "empty audio samples"
	}

	if sampleRate <= 0 {
		p.log.Warn(
			"Invalid sample rate for item-%d: %d, using default %d",
			index,
			sampleRate,
			defaultSampleRate,
		)

		sampleRate = defaultSampleRate
	}

	if p.denoisingEnabled {
		p.log.Info("Applying denoising to audio item-%d", index)

		samples = p.denoiser.Denoise(ctx, samples, sampleRate)
	}

	speakerID := identity.SpeakerID(transcript)
	audioID := p.ids.AudioID(speakerID, index, transcript)
	wavPath := filepath.Join(p.audioDir, audioID+wavExtension)

	writeErr := wavio.WriteFile(wavPath, samples, sampleRate)
	if writeErr != nil {
		return nil, fmt.Sprintf("failed to write audio: %v", writeErr)
	}

	absPath, absErr := filepath.Abs(wavPath)
	if absErr != nil {
		absPath = wavPath
	}

	duration := float64(len(samples)) / float64(sampleRate)

	recording := manifest.Recording{
		ID:         audioID,
		Path:       absPath,
		SampleRate: sampleRate,
		NumSamples: len(samples),
		Duration:   duration,
		Channels:   1,
	}

	supervision := manifest.Supervision{
		ID:          audioID,
		RecordingID: audioID,
		Start:       0.0,
		Duration:    duration,
		Text:        transcript,
		Speaker:     speakerID,
	}

	indexLine := fmt.Sprintf("%s\t%s\t%s\n", audioID, transcript, absPath)

	return &ProcessedItem{
		Recording:   recording,
		Supervision: supervision,
		IndexLine:   indexLine,
	}, ""
}

// resolveAudio locates the sample data under the known payload key
// variants. An unrecognized shape is a skip, never fatal for the run.
func (p *Processor) resolveAudio(index int, item core.RawItem) ([]float64, int, string) {
	payload := item.Audio

	switch {
	case payload != nil && len(payload.Array) > 0:
		return payload.Array, payload.SamplingRate, ""
	case payload != nil && len(payload.Bytes) > 0:
		return p.decodeBytes(payload.Bytes)
	case payload != nil:
		samples, found := alternateSamples(payload)
		if found {
			p.log.Info("Found audio data in alternate key for item-%d", index)

			return samples, payload.SamplingRate, ""
		}

		return nil, 0, "audio payload has no recognized key (expected 'array', 'bytes', or similar)"
	case len(item.AudioBytes) > 0:
		return p.decodeBytes(item.AudioBytes)
	default:
		return nil, 0, "missing audio payload (no 'audio' or 'audio_bytes' column)"
	}
}

func (p *Processor) decodeBytes(data []byte) ([]float64, int, string) {
	samples, sampleRate, err := wavio.Decode(data)
	if err != nil {
		return nil, 0, fmt.Sprintf("failed to decode audio bytes: %v", err)
	}

	return samples, sampleRate, ""
}

func alternateSamples(payload *core.AudioPayload) ([]float64, bool) {
	alternates := [][]float64{
		payload.Data,
		payload.Waveform,
		payload.Signal,
		payload.Samples,
	}

	for _, samples := range alternates {
		if len(samples) > 0 {
			return samples, true
		}
	}

	return nil, false
}
