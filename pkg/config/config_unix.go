//go:build !windows

package config

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
)

var DefaultConfigPath = "/etc/pescan/config.yml"

// GetConfigFile returns the user config file when it exists, the system one otherwise.
func GetConfigFile() (config string, err error) {
	config = DefaultConfigPath
	home, err := homedir.Dir()
	if err != nil {
		return
	}
	cfg := filepath.Join(home, ".config", "pescan", "config.yml")
	if _, statErr := os.Stat(cfg); statErr == nil {
		return cfg, nil
	}
	return
}
