package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string `mapstructure:"mode"`
	Port       int    `mapstructure:"port"`
	StaticPath string `mapstructure:"static_path"`
	Secret     string `mapstructure:"secret"`
	LogLevel   string `mapstructure:"log_level"`

	Signal SignalConfig `mapstructure:"signal"`
	RTC    RTCConfig    `mapstructure:"rtc"`
	Call   CallConfig   `mapstructure:"call"`
	Media  MediaConfig  `mapstructure:"media"`
}

type SignalConfig struct {
	URL            string        `mapstructure:"url"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReadLimit      int64         `mapstructure:"read_limit"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

type RTCConfig struct {
	ICEServers     []string `mapstructure:"ice_servers"`
	TURNURLs       []string `mapstructure:"turn_urls"`
	TURNUsername   string   `mapstructure:"turn_username"`
	TURNCredential string   `mapstructure:"turn_credential"`
	UDPPortMin     uint16   `mapstructure:"udp_port_min"`
	UDPPortMax     uint16   `mapstructure:"udp_port_max"`
}

type CallConfig struct {
	// Room is joined on startup when set.
	Room            string `mapstructure:"room"`
	AutoMedia       bool   `mapstructure:"auto_media"`
	ConnectedNotify string `mapstructure:"connected_notify"`
	// ParticipantID filters relay messages addressed to other peers.
	ParticipantID string `mapstructure:"participant_id"`
}

type MediaConfig struct {
	Quality       string `mapstructure:"quality"`
	VideoDeviceID string `mapstructure:"video_device_id"`
	AudioDeviceID string `mapstructure:"audio_device_id"`
	Mirror        bool   `mapstructure:"mirror"`
	VideoBitRate  int    `mapstructure:"video_bitrate"`
	AudioBitRate  int    `mapstructure:"audio_bitrate"`
	MTU           int    `mapstructure:"mtu"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("secret", "change-me")
	v.SetDefault("log_level", "info")

	v.SetDefault("signal.url", "ws://localhost:8000")
	v.SetDefault("signal.connect_timeout", "10s")
	v.SetDefault("signal.read_limit", 1<<20)
	v.SetDefault("signal.ping_period", "30s")
	v.SetDefault("signal.write_timeout", "5s")

	v.SetDefault("rtc.ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("rtc.turn_urls", []string{})
	v.SetDefault("rtc.udp_port_min", 0)
	v.SetDefault("rtc.udp_port_max", 0)

	v.SetDefault("call.room", "")
	v.SetDefault("call.auto_media", true)
	v.SetDefault("call.connected_notify", "call")
	v.SetDefault("call.participant_id", "")

	v.SetDefault("media.quality", "720p")
	v.SetDefault("media.video_device_id", "")
	v.SetDefault("media.audio_device_id", "")
	v.SetDefault("media.mirror", true)
	v.SetDefault("media.video_bitrate", 1_500_000)
	v.SetDefault("media.audio_bitrate", 64_000)
	v.SetDefault("media.mtu", 1200)
}

// Load reads config/config.<CONFIG_ENV>.yaml over the defaults. Environment
// variables prefixed with VIDEOCALL_ override both.
func Load() (*Config, *viper.Viper, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, *viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("videocall")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Err(err).Msg("config file not loaded, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("config loaded")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("relay", cfg.Signal.URL).Msg("config ready")
	return &cfg, v, nil
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Signal.URL == "" {
		return fmt.Errorf("signal.url is required")
	}
	if c.RTC.UDPPortMin > c.RTC.UDPPortMax {
		return fmt.Errorf("rtc udp port range %d-%d is inverted", c.RTC.UDPPortMin, c.RTC.UDPPortMax)
	}
	return nil
}

// Level parses LogLevel, defaulting to info.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
