// Package capture acquires camera and microphone through pion/mediadevices
// and exposes the encoded output as RTP capture sources.
package capture

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/dkeye/VideoCall/internal/core"
	"github.com/dkeye/VideoCall/internal/domain"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const DefaultMTU = 1200

type Options struct {
	VideoBitRate int
	AudioBitRate int
	MTU          int
}

// Devices implements core.MediaDevices with VP8 video and Opus audio.
type Devices struct {
	selector *mediadevices.CodecSelector
	video    webrtc.RTPCodecCapability
	audio    webrtc.RTPCodecCapability
	mtu      int

	unappliedOnce sync.Once
}

func NewDevices(opts Options) (*Devices, error) {
	vp8, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("vp8 params: %w", err)
	}
	if opts.VideoBitRate > 0 {
		vp8.BitRate = opts.VideoBitRate
	}
	op, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus params: %w", err)
	}
	if opts.AudioBitRate > 0 {
		op.BitRate = opts.AudioBitRate
	}
	if opts.MTU <= 0 {
		opts.MTU = DefaultMTU
	}
	return &Devices{
		selector: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vp8),
			mediadevices.WithAudioEncoders(&op),
		),
		video: vp8.RTPCodec().RTPCodecCapability,
		audio: op.RTPCodec().RTPCodecCapability,
		mtu:   opts.MTU,
	}, nil
}

// Populate registers the encoders' codecs so local tracks can bind.
func (d *Devices) Populate(m *webrtc.MediaEngine) {
	d.selector.Populate(m)
}

// DeviceInfo is one capture device as reported by the drivers.
type DeviceInfo struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Kind  string `json:"kind"`
}

func (d *Devices) Enumerate() []DeviceInfo {
	infos := mediadevices.EnumerateDevices()
	out := make([]DeviceInfo, 0, len(infos))
	for _, i := range infos {
		kind := string(domain.KindVideo)
		if i.Kind == mediadevices.AudioInput {
			kind = string(domain.KindAudio)
		}
		out = append(out, DeviceInfo{ID: i.DeviceID, Label: i.Label, Kind: kind})
	}
	return out
}

func (d *Devices) GetUserMedia(ctx context.Context, c domain.Constraints) ([]core.CaptureSource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if flags := unappliedAudio(c.Audio); len(flags) > 0 {
		d.unappliedOnce.Do(func() {
			log.Info().Str("module", "capture").Strs("flags", flags).Msg("audio processing requested but not supported by the drivers, ignored")
		})
	}
	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: videoConstraints(c.Video),
		Audio: audioConstraints(c.Audio),
		Codec: d.selector,
	})
	if err != nil {
		return nil, err
	}

	tracks := stream.GetTracks()
	sources := make([]core.CaptureSource, 0, len(tracks))
	for i, tr := range tracks {
		codec := d.video
		kind := domain.KindVideo
		if tr.Kind() == webrtc.RTPCodecTypeAudio {
			codec = d.audio
			kind = domain.KindAudio
		}
		reader, err := tr.NewRTPReader(codecName(codec.MimeType), rand.Uint32(), d.mtu)
		if err != nil {
			for _, s := range sources {
				_ = s.Close()
			}
			for _, t := range tracks[i:] {
				_ = t.Close()
			}
			return nil, fmt.Errorf("rtp reader for %s: %w", kind, err)
		}
		tr.OnEnded(func(err error) {
			log.Warn().Str("module", "capture").Str("kind", string(kind)).Err(err).Msg("capture track ended")
		})
		sources = append(sources, newTrackSource(tr.ID(), kind, codec, reader, tr))
	}
	log.Info().Str("module", "capture").Int("tracks", len(sources)).Msg("user media acquired")
	return sources, nil
}

// codecName is the encoder name mediadevices expects, "VP8" for "video/VP8".
func codecName(mime string) string {
	if _, name, ok := strings.Cut(mime, "/"); ok {
		return name
	}
	return mime
}

func videoConstraints(v domain.VideoConstraints) func(*mediadevices.MediaTrackConstraints) {
	return func(c *mediadevices.MediaTrackConstraints) {
		if v.DeviceID != "" {
			c.DeviceID = prop.StringExact(v.DeviceID)
		}
		c.Width = prop.Int(v.Width)
		c.Height = prop.Int(v.Height)
		c.FrameRate = prop.FloatRanged{Ideal: v.FrameRateIdeal, Max: v.FrameRateMax}
	}
}

// unappliedAudio lists requested processing flags that mediadevices has no
// constraint for.
func unappliedAudio(a domain.AudioConstraints) []string {
	var out []string
	if a.EchoCancellation {
		out = append(out, "echo_cancellation")
	}
	if a.NoiseSuppression {
		out = append(out, "noise_suppression")
	}
	if a.AutoGainControl {
		out = append(out, "auto_gain_control")
	}
	return out
}

// audioConstraints applies the device selection and sample format only.
func audioConstraints(a domain.AudioConstraints) func(*mediadevices.MediaTrackConstraints) {
	return func(c *mediadevices.MediaTrackConstraints) {
		if a.DeviceID != "" {
			c.DeviceID = prop.StringExact(a.DeviceID)
		}
		c.ChannelCount = prop.Int(1)
		c.IsFloat = prop.BoolExact(false)
		c.IsBigEndian = prop.BoolExact(false)
		c.IsInterleaved = prop.BoolExact(true)
	}
}
