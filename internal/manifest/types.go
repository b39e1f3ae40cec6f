// Package manifest builds and persists the corpus manifest and its sidecar
// text index. The manifest is a gzip-compressed JSON-lines collection of
// cuts, one artifact per dataset split.
package manifest

// Recording references one persisted audio file plus its format metadata.
// Recordings are created once and immutable; only external corpus cleanup
// removes them.
type Recording struct {
	ID         string  `json:"id"`
	Path       string  `json:"path"`
	SampleRate int     `json:"sample_rate"`
	NumSamples int     `json:"num_samples"`
	Duration   float64 `json:"duration"`
	Channels   int     `json:"channels"`
}

// Supervision is a timed transcript annotation over a Recording. This
// pipeline produces exactly one Supervision per Recording, spanning the
// whole file.
type Supervision struct {
	ID          string  `json:"id"`
	RecordingID string  `json:"recording_id"`
	Start       float64 `json:"start"`
	Duration    float64 `json:"duration"`
	Text        string  `json:"text"`
	Speaker     string  `json:"speaker"`
}

// Cut pairs a Recording with its Supervisions, trimmed to the supervised
// span. Cuts are the unit stored in the manifest and consumed by training.
type Cut struct {
	ID           string        `json:"id"`
	Start        float64       `json:"start"`
	Duration     float64       `json:"duration"`
	Channel      int           `json:"channel"`
	Recording    Recording     `json:"recording"`
	Supervisions []Supervision `json:"supervisions"`
}
