// Package denoise isolates the vocal component of corpus audio using a
// pretrained source-separation model.
//
// The adapter owns a process-scoped separator handle that is constructed
// lazily on first use and shared read-only afterwards. Denoising is strictly
// best-effort: any failure falls back to the original samples so that a
// broken model never aborts an item.
package denoise

import (
	"context"
	"math"
	"slices"
	"sync"

	"github.com/book-expert/corpus-service/internal/core"
	"github.com/book-expert/corpus-service/internal/wavio"
	"github.com/book-expert/logger"
)

// Default model parameters. The vocals index assumes the standard
// drums/bass/other/vocals four-source layout.
const (
	DefaultPrimaryModel  = "htdemucs_ft"
	DefaultFallbackModel = "mdx_extra"
	DefaultVocalsIndex   = 3
	DefaultMaxSeconds    = 300
)

// peakCeiling caps the rescaled output amplitude to avoid clipping.
const peakCeiling = 0.95

// Config holds the denoiser adapter settings.
type Config struct {
	// BinaryPath locates the separation binary. Empty disables denoising
	// entirely; the adapter then passes audio through unchanged.
	BinaryPath    string
	PrimaryModel  string
	FallbackModel string
	// VocalsIndex selects the vocal stem in the separator's source layout.
	VocalsIndex int
	// MaxSeconds bounds the audio duration fed to the separator.
	MaxSeconds int
}

// ConstructorFunc builds a separator for the named model.
type ConstructorFunc func(model string) (core.SourceSeparator, error)

// Adapter implements core.Denoiser on top of a lazily constructed
// source separator.
type Adapter struct {
	cfg       Config
	log       *logger.Logger
	construct ConstructorFunc

	mu                sync.Mutex
	separator         core.SourceSeparator
	unavailable       bool
	passThroughWarned bool
}

// New creates an Adapter that constructs subprocess-backed separators from
// the configured binary. An empty binary path yields a pass-through adapter.
func New(cfg Config, log *logger.Logger) *Adapter {
	var construct ConstructorFunc
	if cfg.BinaryPath != "" {
		construct = func(model string) (core.SourceSeparator, error) {
			return NewSubprocessSeparator(cfg.BinaryPath, model)
		}
	}

	return NewWithConstructor(cfg, log, construct)
}

// NewWithConstructor creates an Adapter with a custom separator constructor.
// This constructor is primarily for testing purposes, allowing injection of
// fake separators while keeping the adapter behavior identical.
func NewWithConstructor(cfg Config, log *logger.Logger, construct ConstructorFunc) *Adapter {
	if cfg.PrimaryModel == "" {
		cfg.PrimaryModel = DefaultPrimaryModel
	}

	if cfg.FallbackModel == "" {
		cfg.FallbackModel = DefaultFallbackModel
	}

	if cfg.VocalsIndex <= 0 {
		cfg.VocalsIndex = DefaultVocalsIndex
	}

	if cfg.MaxSeconds <= 0 {
		cfg.MaxSeconds = DefaultMaxSeconds
	}

	return &Adapter{
		cfg:               cfg,
		log:               log,
		construct:         construct,
		mu:                sync.Mutex{},
		separator:         nil,
		unavailable:       false,
		passThroughWarned: false,
	}
}

// Denoise isolates the vocal component of a mono sample buffer. The input is
// never mutated. On any failure the original samples are returned unchanged.
func (a *Adapter) Denoise(ctx context.Context, samples []float64, sampleRate int) []float64 {
	if len(samples) == 0 || sampleRate <= 0 {
		return samples
	}

	separator := a.acquireSeparator()
	if separator == nil {
		return samples
	}

	work := a.prepareInput(samples, sampleRate)

	// The model expects a 2-channel layout; duplicate the mono input.
	stems, err := separator.Separate(
		ctx,
		[][]float64{work, slices.Clone(work)},
		sampleRate,
	)
	if err != nil {
		a.log.Error("Audio separation failed: %v", err)

		return samples
	}

	vocals := a.selectVocals(stems)
	if vocals == nil {
		a.log.Warn("Separator returned no stems, returning original audio")

		return samples
	}

	denoised := wavio.DownMix(vocals)

	outputPeak := wavio.PeakAmplitude(denoised)
	if outputPeak == 0 {
		a.log.Warn("Denoised audio is silent, returning original")

		return samples
	}

	target := math.Min(wavio.PeakAmplitude(work), peakCeiling)
	scale := target / outputPeak

	for i := range denoised {
		denoised[i] *= scale
	}

	return denoised
}

// acquireSeparator returns the shared separator instance, constructing it on
// first use. Construction is attempted once with the primary model, once
// with the fallback model, and never again after both fail.
func (a *Adapter) acquireSeparator() core.SourceSeparator {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.separator != nil {
		return a.separator
	}

	if a.construct == nil {
		if !a.passThroughWarned {
			a.log.Warn("No denoising model configured, returning original audio")

			a.passThroughWarned = true
		}

		return nil
	}

	if a.unavailable {
		return nil
	}

	separator, err := a.construct(a.cfg.PrimaryModel)
	if err != nil {
		a.log.Warn("Failed to load separation model '%s': %v", a.cfg.PrimaryModel, err)
		a.log.Info("Trying fallback to smaller '%s' model...", a.cfg.FallbackModel)

		separator, err = a.construct(a.cfg.FallbackModel)
		if err != nil {
			a.log.Error("Failed to load fallback model: %v", err)

			a.unavailable = true

			return nil
		}

		a.log.Info("Separation model '%s' loaded successfully as fallback", a.cfg.FallbackModel)
	}

	a.separator = separator

	return separator
}

// prepareInput returns a truncated, amplitude-coerced copy of the input.
func (a *Adapter) prepareInput(samples []float64, sampleRate int) []float64 {
	maxSamples := a.cfg.MaxSeconds * sampleRate
	if len(samples) > maxSamples {
		a.log.Warn(
			"Audio too long (%.1fs), truncating to %ds",
			float64(len(samples))/float64(sampleRate),
			a.cfg.MaxSeconds,
		)

		samples = samples[:maxSamples]
	}

	work := slices.Clone(samples)

	peak := wavio.PeakAmplitude(work)
	if peak > 1.0 {
		for i := range work {
			work[i] /= peak
		}
	}

	return work
}

func (a *Adapter) selectVocals(stems [][][]float64) [][]float64 {
	if len(stems) == 0 {
		return nil
	}

	index := a.cfg.VocalsIndex
	if index >= len(stems) {
		index = len(stems) - 1

		a.log.Warn("Using fallback stem for vocals (index %d)", index)
	}

	return stems[index]
}
