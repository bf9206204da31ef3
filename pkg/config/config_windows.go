//go:build windows

package config

import (
	"os"
	"path/filepath"
)

var DefaultConfigPath = filepath.Join(os.Getenv("AppData"), "pescan", "config.yml")

func GetConfigFile() (config string, err error) {
	config = DefaultConfigPath
	home := os.Getenv("APPDATA")
	cfg := filepath.Join(home, "pescan", "config.yml")
	if _, statErr := os.Stat(cfg); statErr == nil {
		return cfg, nil
	}
	return
}
