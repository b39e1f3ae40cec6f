// Package core defines the shared data model and interfaces for the corpus
// preparation pipeline.
package core

import (
	"context"
	"errors"
)

// ErrEndOfSource signals that an item source has been fully consumed.
var ErrEndOfSource = errors.New("end of source")

// AudioPayload carries the audio column of one raw record. Dataset exports
// disagree on the key holding the sample data, so every observed variant is
// decoded; the item processor resolves them in priority order.
type AudioPayload struct {
	Array        []float64 `json:"array,omitempty"`
	SamplingRate int       `json:"sampling_rate,omitempty"`
	Bytes        []byte    `json:"bytes,omitempty"`
	Path         string    `json:"path,omitempty"`
	Data         []float64 `json:"data,omitempty"`
	Waveform     []float64 `json:"waveform,omitempty"`
	Signal       []float64 `json:"signal,omitempty"`
	Samples      []float64 `json:"samples,omitempty"`
}

// RawItem is one record produced by an ItemSource. It is ephemeral and not
// owned beyond a single processing step.
type RawItem struct {
	Transcript string        `json:"transcription"`
	Audio      *AudioPayload `json:"audio,omitempty"`
	AudioBytes []byte        `json:"audio_bytes,omitempty"`
}

// ItemSource produces a finite, forward-only, lazily evaluated sequence of
// raw records. Next returns ErrEndOfSource once the sequence is drained.
// Iteration order must be stable because audio identity derivation
// incorporates the positional index.
type ItemSource interface {
	Next(ctx context.Context) (RawItem, error)
	Close() error
}

// Denoiser isolates the vocal component of a sample buffer. Implementations
// never mutate the input and never fail the item: on any internal error the
// original samples are returned unchanged.
type Denoiser interface {
	Denoise(ctx context.Context, samples []float64, sampleRate int) []float64
}

// SourceSeparator splits a multi-channel sample buffer into stems, ordered
// by the model's source layout. The concrete model identity is an external
// collaborator, swappable without affecting the pipeline contract.
type SourceSeparator interface {
	Separate(
		ctx context.Context,
		channels [][]float64,
		sampleRate int,
	) ([][][]float64, error)
}
