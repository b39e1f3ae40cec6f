package manifest

import (
	"github.com/book-expert/logger"
)

// Assemble cross-validates recordings against supervisions and derives the
// cut collection for one split.
//
// Consistency repair: malformed recordings are dropped, supervisions whose
// recording is missing are dropped, and at most one supervision per
// recording survives (duplicate spans are discarded). Dropped counts are
// logged, never fatal.
func Assemble(
	recordings []Recording,
	supervisions []Supervision,
	log *logger.Logger,
) []Cut {
	recordingsByID := make(map[string]Recording, len(recordings))
	malformed := 0

	for _, recording := range recordings {
		if recording.ID == "" || recording.Duration <= 0 || recording.Path == "" {
			malformed++

			continue
		}

		recordingsByID[recording.ID] = recording
	}

	if malformed > 0 {
		log.Warn("Dropped %d malformed recordings", malformed)
	}

	cuts := make([]Cut, 0, len(supervisions))
	claimed := make(map[string]struct{}, len(supervisions))
	orphaned := 0
	overlapping := 0

	for _, supervision := range supervisions {
		recording, ok := recordingsByID[supervision.RecordingID]
		if !ok {
			orphaned++

			continue
		}

		_, alreadyClaimed := claimed[supervision.RecordingID]
		if alreadyClaimed {
			overlapping++

			continue
		}

		claimed[supervision.RecordingID] = struct{}{}

		cuts = append(cuts, Cut{
			ID:           supervision.ID,
			Start:        supervision.Start,
			Duration:     supervision.Duration,
			Channel:      0,
			Recording:    recording,
			Supervisions: []Supervision{supervision},
		})
	}

	if orphaned > 0 {
		log.Warn("Dropped %d supervisions without a matching recording", orphaned)
	}

	if overlapping > 0 {
		log.Warn("Dropped %d overlapping supervision spans", overlapping)
	}

	return cuts
}
