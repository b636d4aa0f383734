package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables understood by the tool.
const (
	EnvDittoBase      = "DITTO_BASE"
	EnvDittoAuthBasic = "DITTO_AUTH_BASIC"
	EnvDittoUsername  = "DITTO_USERNAME"
	EnvDittoPassword  = "DITTO_PASSWORD"
	EnvDittoTimeout   = "DITTO_TIMEOUT"
)

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are skipped.
// With no arguments it looks for ./.env.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

// ApplyEnv overlays DITTO_* variables onto cfg. Unset or empty variables
// leave the file value in place.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if cfg == nil {
		return
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(EnvDittoBase, &cfg.Ditto.BaseURL)
	set(EnvDittoAuthBasic, &cfg.Ditto.AuthBasic)
	set(EnvDittoUsername, &cfg.Ditto.Username)
	set(EnvDittoTimeout, &cfg.Ditto.Timeout)
	// passwords may legitimately contain surrounding spaces
	if v, ok := lookup(EnvDittoPassword); ok && v != "" {
		cfg.Ditto.Password = v
	}
}
