// Package config loads the ambient configuration cmd/kurogo needs to
// wire up the core packages: concurrency limits, TLS verification, the
// muxer binary path, and the download root, via the usual viper
// defaults-then-env-override layering. BaseURL is loaded as well, but
// no package in this repository reads it; play-page URLs come from the
// job list.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every ambient setting. The core packages never read
// this directly — cmd/kurogo translates it into explicit parameters
// (fetch.Config, segment.Config, scheduler.Config, ...).
type Config struct {
	ConcurrentEpisodes int           `mapstructure:"concurrent_episodes"`
	SegmentConcurrency int           `mapstructure:"segment_concurrency"`
	BaseURL            string        `mapstructure:"base_url"`
	InsecureTLS        bool          `mapstructure:"insecure_tls"`
	MuxerPath          string        `mapstructure:"muxer_path"`
	DownloadRoot       string        `mapstructure:"download_root"`
	FetchTimeout       time.Duration `mapstructure:"fetch_timeout"`
	Debug              bool          `mapstructure:"debug"`
}

// Load layers the defaults below, an optional config file, and KUROGO_*
// environment variable overrides; viper resolves env over file over
// default automatically.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, err
			}
		}
	}

	v.SetEnvPrefix("KUROGO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("concurrent_episodes", 2)
	v.SetDefault("segment_concurrency", 4)
	v.SetDefault("base_url", "")
	v.SetDefault("insecure_tls", false)
	v.SetDefault("muxer_path", "ffmpeg")
	v.SetDefault("download_root", "./downloads")
	v.SetDefault("fetch_timeout", 60*time.Second)
	v.SetDefault("debug", false)
}
