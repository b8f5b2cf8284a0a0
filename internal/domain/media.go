package domain

type MediaKind string

const (
	KindVideo MediaKind = "video"
	KindAudio MediaKind = "audio"
)

type Quality string

const (
	Quality1080p Quality = "1080p"
	Quality720p  Quality = "720p"
	Quality480p  Quality = "480p"
	Quality360p  Quality = "360p"

	DefaultQuality = Quality720p
)

type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

var QualityPresets = map[Quality]Resolution{
	Quality1080p: {Width: 1920, Height: 1080},
	Quality720p:  {Width: 1280, Height: 720},
	Quality480p:  {Width: 640, Height: 480},
	Quality360p:  {Width: 480, Height: 360},
}

// PresetFor returns the ideal resolution for q, falling back to 720p.
func PresetFor(q Quality) Resolution {
	if r, ok := QualityPresets[q]; ok {
		return r
	}
	return QualityPresets[DefaultQuality]
}

// LocalMediaState is mutated only by explicit user action.
type LocalMediaState struct {
	VideoEnabled  bool    `json:"video_enabled"`
	AudioEnabled  bool    `json:"audio_enabled"`
	Mirror        bool    `json:"mirror"`
	Quality       Quality `json:"quality"`
	VideoDeviceID string  `json:"video_device_id,omitempty"`
	AudioDeviceID string  `json:"audio_device_id,omitempty"`
}

type VideoConstraints struct {
	// DeviceID is matched exactly when set.
	DeviceID       string
	Width          int
	Height         int
	FrameRateIdeal float32
	FrameRateMax   float32
}

type AudioConstraints struct {
	DeviceID         string
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

type Constraints struct {
	Video VideoConstraints
	Audio AudioConstraints
}

// ConstraintsFor derives capture constraints from the selected preset and devices.
func ConstraintsFor(s LocalMediaState) Constraints {
	res := PresetFor(s.Quality)
	return Constraints{
		Video: VideoConstraints{
			DeviceID:       s.VideoDeviceID,
			Width:          res.Width,
			Height:         res.Height,
			FrameRateIdeal: 30,
			FrameRateMax:   60,
		},
		Audio: AudioConstraints{
			DeviceID:         s.AudioDeviceID,
			EchoCancellation: true,
			NoiseSuppression: true,
			AutoGainControl:  true,
		},
	}
}

// Settings store keys for the local media preferences.
const (
	SettingVideoDevice = "selected_video_device_id"
	SettingAudioDevice = "selected_audio_device_id"
	SettingQuality     = "selected_quality"
	SettingMirror      = "should_mirror"
)

// ParseQuality accepts one of the known presets.
func ParseQuality(raw string) (Quality, bool) {
	q := Quality(raw)
	_, ok := QualityPresets[q]
	return q, ok
}
