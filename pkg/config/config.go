package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/units"
)

// DefaultAPIBase can be overridden at build time with
// -ldflags "-X github.com/glimps-re/pescan/pkg/config.DefaultAPIBase=https://scan.example.org".
var DefaultAPIBase = "http://localhost:8000"

const APIBaseEnv = "PESCAN_API_BASE"

var (
	DefaultTimeout           = 5 * time.Minute
	DefaultMaxFileSize       = "100MiB"
	DefaultModificationDelay = 2 * time.Second
	DefaultS3PollInterval    = 10 * time.Second
)

// Version is set at build time.
var Version = "dev"

type APIConfig struct {
	URL      string        `mapstructure:"url" yaml:"url" desc:"base URL of the classification service"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout" desc:"time allowed for one scan request, 0 to wait forever"`
	Insecure bool          `mapstructure:"insecure" yaml:"insecure" desc:"do not check the service certificate"`
}

type WatchConfig struct {
	ModificationDelay time.Duration `mapstructure:"modification_delay" yaml:"modification_delay" desc:"quiet time before a dropped file is selected"`
	AutoScan          bool          `mapstructure:"auto_scan" yaml:"auto_scan" desc:"scan dropped files right away"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint" desc:"custom S3 endpoint (minio...)"`
	Region          string `mapstructure:"region" yaml:"region" desc:"S3 region"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id" desc:"S3 access key"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key" password:"true" desc:"S3 secret key"`
	Insecure        bool   `mapstructure:"insecure" yaml:"insecure" desc:"do not check S3 certificates"`
	UsePathStyle    bool   `mapstructure:"use_path_style" yaml:"use_path_style" desc:"use path style bucket addressing"`

	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval" desc:"period between two listings of a watched bucket"`
}

type Config struct {
	Config      string      `mapstructure:"-" yaml:"config" desc:"path to configuration file"`
	Debug       bool        `mapstructure:"debug" yaml:"debug" desc:"print debug strings"`
	MaxFileSize string      `mapstructure:"max_file_size" yaml:"max_file_size" desc:"largest file submitted to the service (e.g. 100MiB)"`
	API         APIConfig   `mapstructure:"api" yaml:"api" desc:"classification service"`
	Watch       WatchConfig `mapstructure:"watch" yaml:"watch" desc:"drop zone"`
	S3          S3Config    `mapstructure:"s3" yaml:"s3" desc:"S3 source for s3:// selections"`
}

// APIBase returns the service base URL from the environment, or the build default.
func APIBase() string {
	if base := os.Getenv(APIBaseEnv); base != "" {
		return base
	}
	return DefaultAPIBase
}

func Default() *Config {
	return &Config{
		Config:      DefaultConfigPath,
		MaxFileSize: DefaultMaxFileSize,
		API: APIConfig{
			URL:     APIBase(),
			Timeout: DefaultTimeout,
		},
		Watch: WatchConfig{
			ModificationDelay: DefaultModificationDelay,
		},
		S3: S3Config{
			PollInterval: DefaultS3PollInterval,
		},
	}
}

// BaseURL returns the configured service URL without trailing slashes.
func (c *Config) BaseURL() string {
	base := strings.TrimRight(strings.TrimSpace(c.API.URL), "/")
	if base == "" {
		base = strings.TrimRight(APIBase(), "/")
	}
	return base
}

// MaxFileSizeBytes parses MaxFileSize, 0 means no limit.
func (c *Config) MaxFileSizeBytes() (size int64, err error) {
	if strings.TrimSpace(c.MaxFileSize) == "" {
		return
	}
	size, err = units.ParseStrictBytes(c.MaxFileSize)
	if err != nil {
		err = fmt.Errorf("could not parse max_file_size: %w", err)
		return
	}
	if size < 0 {
		err = fmt.Errorf("invalid max_file_size %q", c.MaxFileSize)
	}
	return
}
