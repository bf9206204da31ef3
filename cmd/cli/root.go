package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"sync"

	"github.com/glimps-re/pescan/pkg/client"
	"github.com/glimps-re/pescan/pkg/config"
	"github.com/glimps-re/pescan/pkg/filesystem"
	"github.com/glimps-re/pescan/pkg/monitor"
	"github.com/glimps-re/pescan/pkg/session"
	"github.com/glimps-re/pescan/pkg/view"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// flag name -> config key
var flagKeys = map[string]string{
	"url":           "api.url",
	"timeout":       "api.timeout",
	"insecure":      "api.insecure",
	"max-file-size": "max_file_size",
	"debug":         "debug",
}

func newRootCmd() *cobra.Command {
	appConfig := config.Default()
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:           "pescan",
		Short:         "pescan submits a binary file to a malware classification service and shows its verdict",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) (err error) {
			return loadConfig(v, appConfig)
		},
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			err = yaml.NewEncoder(cmd.OutOrStdout()).Encode(appConfig)
			if err != nil {
				logger.Error("error encode yaml conf", slog.String(logErrorKey, err.Error()))
				return
			}
			return cmd.Usage()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&appConfig.Config, "config", "", "config file (default "+config.DefaultConfigPath+" or user config)")
	flags.String("url", appConfig.API.URL, "classification service base URL (env "+config.APIBaseEnv+")")
	flags.Duration("timeout", appConfig.API.Timeout, "time allowed for one scan, 0 to wait forever")
	flags.Bool("insecure", appConfig.API.Insecure, "do not check the service certificate")
	flags.String("max-file-size", appConfig.MaxFileSize, "largest file submitted (e.g. '100MiB'), empty for no limit")
	flags.BoolP("debug", "d", appConfig.Debug, "print debug strings")
	bindFlags(v, flags, flagKeys)
	v.SetDefault("watch.modification_delay", appConfig.Watch.ModificationDelay)
	v.SetDefault("watch.auto_scan", appConfig.Watch.AutoScan)
	v.SetDefault("s3.region", appConfig.S3.Region)
	v.SetDefault("s3.endpoint", appConfig.S3.Endpoint)
	v.SetDefault("s3.access_key_id", appConfig.S3.AccessKeyID)
	v.SetDefault("s3.secret_access_key", appConfig.S3.SecretAccessKey)
	v.SetDefault("s3.insecure", appConfig.S3.Insecure)
	v.SetDefault("s3.use_path_style", appConfig.S3.UsePathStyle)
	v.SetDefault("s3.poll_interval", appConfig.S3.PollInterval)
	v.SetEnvPrefix("PESCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	rootCmd.AddCommand(
		newScanCmd(appConfig),
		newShellCmd(appConfig),
		newWatchCmd(appConfig, v),
		newHealthCmd(appConfig),
		newVersionCmd(),
	)
	return rootCmd
}

// bindFlags binds each named flag to its config key.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for name, key := range keys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			logger.Error("could not bind flag", slog.String("flag", name), slog.String(logErrorKey, err.Error()))
		}
	}
}

// loadConfig fills appConfig from flags, environment and config file, in that order of precedence.
func loadConfig(v *viper.Viper, appConfig *config.Config) (err error) {
	if appConfig.Config == "" {
		conf, e := config.GetConfigFile()
		if e != nil {
			logger.Debug("no config file", slog.String("location", conf), slog.String(logErrorKey, e.Error()))
		}
		appConfig.Config = conf
	}
	v.SetConfigFile(appConfig.Config)
	v.SetConfigType("yaml")
	if err = v.ReadInConfig(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Error("can't read config", slog.String("location", appConfig.Config), slog.String(logErrorKey, err.Error()))
		}
		err = nil
	}
	if err = v.Unmarshal(appConfig); err != nil {
		logger.Error("can't unmarshal config", slog.String(logErrorKey, err.Error()))
		return
	}
	setupLogging(appConfig.Debug)
	logger.Debug("config loaded", slog.String("location", appConfig.Config), slog.String("url", appConfig.BaseURL()))
	return
}

func setupLogging(debug bool) {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	for _, l := range []*slog.LevelVar{LogLevel, client.LogLevel, session.LogLevel, filesystem.LogLevel, monitor.LogLevel} {
		l.Set(level)
	}
	if debug {
		logger.Debug("debug activated")
	}
}

// app wires the service client, the session and the file selector.
type app struct {
	client   *client.Client
	session  *session.Session
	selector *filesystem.Selector
	out      *printer
}

func newApp(cmd *cobra.Command, appConfig *config.Config) (a *app, err error) {
	maxFileSize, err := appConfig.MaxFileSizeBytes()
	if err != nil {
		return
	}
	c, err := client.NewClient(client.Config{
		BaseURL:   appConfig.BaseURL(),
		Insecure:  appConfig.API.Insecure,
		UserAgent: "pescan/" + config.Version,
	})
	if err != nil {
		return
	}
	a = &app{
		client: c,
		session: session.New(session.Config{
			Scanner:     c,
			Timeout:     appConfig.API.Timeout,
			MaxFileSize: maxFileSize,
		}),
		selector: filesystem.NewSelector(appConfig.S3),
		out: &printer{
			w:    cmd.OutOrStdout(),
			view: view.View{Backend: c.BaseURL()},
		},
	}
	return
}

func (a *app) Close() {
	a.session.Close()
}

// printScanEnd renders the session each time a scan attempt ends.
func (a *app) printScanEnd() {
	previous := session.Idle
	a.session.RegisterOnChange(func(snapshot session.Snapshot) {
		phase := snapshot.State.Phase
		if previous == session.InFlight && (phase == session.Succeeded || phase == session.Failed) {
			a.out.Render(snapshot)
		}
		previous = phase
	})
}

// printer serialises writes coming from the command loop and from scan completions.
type printer struct {
	mu   sync.Mutex
	w    io.Writer
	view view.View
}

func (p *printer) Render(snapshot session.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.view.Render(p.w, snapshot); err != nil {
		logger.Error("could not render session", slog.String(logErrorKey, err.Error()))
	}
}

func (p *printer) Print(a ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := fmt.Fprint(p.w, a...); err != nil {
		logger.Error("could not write output", slog.String(logErrorKey, err.Error()))
	}
}

func (p *printer) Println(a ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := fmt.Fprintln(p.w, a...); err != nil {
		logger.Error("could not write output", slog.String(logErrorKey, err.Error()))
	}
}
