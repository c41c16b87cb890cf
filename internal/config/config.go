// Package config resolves runtime settings for glinject.
//
// Precedence: command-line flags > environment > config file > defaults.
// Flags are applied by the CLI layer after Load; this package handles the
// environment and file layers through viper. The token is deliberately never
// a flag default so it does not end up in shell history.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Settings holds everything the CLI needs to construct a client and engine.
type Settings struct {
	URL        string
	Token      string
	Parent     string
	OnExisting string
}

const (
	DefaultURL        = "https://gitlab.com"
	DefaultOnExisting = "reuse"
)

// Load reads settings from the environment and an optional config file.
// Environment variables use the GLINJECT_ prefix (GLINJECT_URL,
// GLINJECT_TOKEN, ...); GITLAB_URL and GITLAB_TOKEN are accepted as
// conveniences since most users already export them. The config file
// (glinject.yaml in the working directory) is optional.
func Load() (*Settings, error) {
	v := viper.New()
	v.SetConfigName("glinject")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetDefault("url", DefaultURL)
	v.SetDefault("on-existing", DefaultOnExisting)

	v.SetEnvPrefix("GLINJECT")
	v.AutomaticEnv()
	_ = v.BindEnv("url", "GLINJECT_URL", "GITLAB_URL")
	_ = v.BindEnv("token", "GLINJECT_TOKEN", "GITLAB_TOKEN")
	_ = v.BindEnv("parent", "GLINJECT_PARENT")
	_ = v.BindEnv("on-existing", "GLINJECT_ON_EXISTING")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	return &Settings{
		URL:        v.GetString("url"),
		Token:      v.GetString("token"),
		Parent:     v.GetString("parent"),
		OnExisting: v.GetString("on-existing"),
	}, nil
}
