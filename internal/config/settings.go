package config

import (
	"sync"

	"github.com/dkeye/VideoCall/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Settings stores the user's media preferences in the config file. Keys are
// kept under media.* so a restart picks them up as defaults.
type Settings struct {
	mu      sync.Mutex
	v       *viper.Viper
	persist bool
}

var settingKeys = map[string]string{
	domain.SettingVideoDevice: "media.video_device_id",
	domain.SettingAudioDevice: "media.audio_device_id",
	domain.SettingQuality:     "media.quality",
	domain.SettingMirror:      "media.mirror",
}

// NewSettings wraps v. With persist set every Set rewrites the config file.
func NewSettings(v *viper.Viper, persist bool) *Settings {
	if v == nil {
		v = viper.New()
	}
	return &Settings{v: v, persist: persist}
}

func path(key string) string {
	if p, ok := settingKeys[key]; ok {
		return p
	}
	return "settings." + key
}

func (s *Settings) GetString(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v.GetString(path(key))
}

func (s *Settings) GetBool(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v.GetBool(path(key))
}

func (s *Settings) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v.Set(path(key), value)
	if !s.persist {
		return
	}
	if err := s.v.WriteConfig(); err != nil {
		log.Warn().Str("module", "config").Str("key", key).Err(err).Msg("settings not persisted")
	}
}
