// Package wavio encodes and decodes waveform files for the corpus
// preparation pipeline. Samples are exchanged as float64 buffers in the
// [-1, 1] range; on disk everything is 16-bit PCM WAV.
package wavio

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Encoding constants.
const (
	bitDepth       = 16
	pcmFormat      = 1
	pcmScale       = 32767
	dirPermissions = 0o750
)

// Static errors.
var (
	ErrEmptySamples      = errors.New("samples cannot be empty")
	ErrInvalidSampleRate = errors.New("sample rate must be positive")
	ErrEmptyPayload      = errors.New("audio payload contains no samples")
	ErrChannelMismatch   = errors.New("channels must have equal length")
)

// WriteFile writes a mono sample buffer to path as 16-bit PCM WAV, creating
// parent directories as needed.
func WriteFile(path string, samples []float64, sampleRate int) error {
	return WriteChannelsFile(path, [][]float64{samples}, sampleRate)
}

// WriteChannelsFile writes a multi-channel sample buffer to path as 16-bit
// PCM WAV. All channels must have the same length.
func WriteChannelsFile(path string, channels [][]float64, sampleRate int) error {
	validationErr := validateChannels(channels, sampleRate)
	if validationErr != nil {
		return validationErr
	}

	dirErr := os.MkdirAll(filepath.Dir(path), dirPermissions)
	if dirErr != nil {
		return fmt.Errorf("failed to create audio directory: %w", dirErr)
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create audio file: %w", err)
	}

	encodeErr := encodeChannels(out, channels, sampleRate)

	closeErr := out.Close()
	if encodeErr != nil {
		return encodeErr
	}

	if closeErr != nil {
		return fmt.Errorf("failed to close audio file '%s': %w", path, closeErr)
	}

	return nil
}

// Decode decodes a WAV payload into a mono sample buffer and its sample
// rate. Multi-channel payloads are down-mixed by averaging.
func Decode(data []byte) ([]float64, int, error) {
	channels, sampleRate, err := DecodeChannels(data)
	if err != nil {
		return nil, 0, err
	}

	return DownMix(channels), sampleRate, nil
}

// DecodeChannels decodes a WAV payload into per-channel sample buffers and
// the payload's sample rate.
func DecodeChannels(data []byte) ([][]float64, int, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode wav payload: %w", err)
	}

	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return nil, 0, ErrEmptyPayload
	}

	depth := buf.SourceBitDepth
	if depth <= 0 {
		depth = bitDepth
	}

	scale := float64(int64(1) << (depth - 1))

	numChannels := buf.Format.NumChannels
	if numChannels < 1 {
		numChannels = 1
	}

	frames := len(buf.Data) / numChannels
	channels := make([][]float64, numChannels)

	for channel := range channels {
		channels[channel] = make([]float64, frames)
	}

	for frame := range frames {
		for channel := range channels {
			sample := buf.Data[frame*numChannels+channel]
			channels[channel][frame] = float64(sample) / scale
		}
	}

	return channels, buf.Format.SampleRate, nil
}

// DecodeFile reads and decodes a WAV file into a mono sample buffer and its
// sample rate.
func DecodeFile(path string) ([]float64, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read audio file: %w", err)
	}

	return Decode(data)
}

// DecodeChannelsFile reads and decodes a WAV file into per-channel sample
// buffers and the file's sample rate.
func DecodeChannelsFile(path string) ([][]float64, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read audio file: %w", err)
	}

	return DecodeChannels(data)
}

// DownMix averages per-channel buffers into a single mono buffer.
func DownMix(channels [][]float64) []float64 {
	if len(channels) == 0 {
		return nil
	}

	if len(channels) == 1 {
		return channels[0]
	}

	frames := len(channels[0])
	mono := make([]float64, frames)

	for frame := range mono {
		var sum float64
		for _, channel := range channels {
			sum += channel[frame]
		}

		mono[frame] = sum / float64(len(channels))
	}

	return mono
}

// PeakAmplitude returns the largest absolute sample value in the buffer.
func PeakAmplitude(samples []float64) float64 {
	var peak float64

	for _, sample := range samples {
		abs := math.Abs(sample)
		if abs > peak {
			peak = abs
		}
	}

	return peak
}

func validateChannels(channels [][]float64, sampleRate int) error {
	if sampleRate <= 0 {
		return ErrInvalidSampleRate
	}

	if len(channels) == 0 || len(channels[0]) == 0 {
		return ErrEmptySamples
	}

	for _, channel := range channels[1:] {
		if len(channel) != len(channels[0]) {
			return ErrChannelMismatch
		}
	}

	return nil
}

func encodeChannels(out *os.File, channels [][]float64, sampleRate int) error {
	numChannels := len(channels)
	frames := len(channels[0])

	buf := &gaudio.IntBuffer{
		Format: &gaudio.Format{
			NumChannels: numChannels,
			SampleRate:  sampleRate,
		},
		Data:           make([]int, frames*numChannels),
		SourceBitDepth: bitDepth,
	}

	for frame := range frames {
		for channel := range channels {
			buf.Data[frame*numChannels+channel] = quantize(channels[channel][frame])
		}
	}

	encoder := wav.NewEncoder(out, sampleRate, bitDepth, numChannels, pcmFormat)

	writeErr := encoder.Write(buf)
	if writeErr != nil {
		return fmt.Errorf("failed to encode audio samples: %w", writeErr)
	}

	closeErr := encoder.Close()
	if closeErr != nil {
		return fmt.Errorf("failed to finalize wav encoding: %w", closeErr)
	}

	return nil
}

func quantize(sample float64) int {
	clamped := math.Max(-1.0, math.Min(1.0, sample))

	return int(math.Round(clamped * pcmScale))
}
