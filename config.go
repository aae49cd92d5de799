package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type config struct {
	RelayAddr   string         `yaml:"relay_addr"`
	HTTPAddr    string         `yaml:"http_addr"`
	Origin      string         `yaml:"origin"`
	IDs         string         `yaml:"ids"`
	ReadLimit   int64          `yaml:"read_limit"`
	LogLevel    string         `yaml:"log_level"`
	MetricsTick time.Duration  `yaml:"metrics_tick"`
	StopTimeout time.Duration  `yaml:"stop_timeout"`
	KillTimeout time.Duration  `yaml:"kill_timeout"`
	Router      routerConfig   `yaml:"router"`
	Notifier    notifierConfig `yaml:"notifier"`
}

func defaultConfig() *config {
	return &config{
		RelayAddr:   ":9001",
		HTTPAddr:    ":3000",
		IDs:         "uuid",
		ReadLimit:   defaultReadLimit,
		LogLevel:    "info",
		MetricsTick: 60 * time.Second,
		StopTimeout: 10 * time.Second,
		KillTimeout: 1 * time.Second,
		Router:      defaultRouterConfig(),
		Notifier:    defaultNotifierConfig(),
	}
}

// parseConfig builds the configuration from defaults, then the optional
// YAML file named by --config, then any flags set explicitly in args.
func parseConfig(args []string) (*config, error) {
	cfg := defaultConfig()
	fs := pflag.NewFlagSet("pingrelay", pflag.ContinueOnError)
	path := fs.String("config", "", "path to a YAML configuration file")
	fs.StringVar(&cfg.RelayAddr, "addr", cfg.RelayAddr, "websocket relay listen address")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "log viewer and API listen address")
	fs.StringVar(&cfg.Origin, "origin", cfg.Origin, "websocket server checks Origin headers against this scheme://host[:port]")
	fs.StringVar(&cfg.IDs, "ids", cfg.IDs, "connection identity generator: uuid or counter")
	fs.Int64Var(&cfg.ReadLimit, "read-limit", cfg.ReadLimit, "maximum inbound message size in bytes")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "diagnostic log level")
	fs.DurationVar(&cfg.MetricsTick, "metrics.tick", cfg.MetricsTick, "metrics: duration between reports")
	fs.DurationVar(&cfg.StopTimeout, "stop-timeout", cfg.StopTimeout, "stop timeout")
	fs.DurationVar(&cfg.KillTimeout, "kill-timeout", cfg.KillTimeout, "kill timeout")
	fs.StringVar(&cfg.Router.PromoteText, "promote-text", cfg.Router.PromoteText, "message text that promotes a connection to admin")
	fs.StringVar(&cfg.Router.ConnectedText, "connected-text", cfg.Router.ConnectedText, "nested message text announcing a customer connection")
	fs.StringVar(&cfg.Router.NotifyTarget, "notify-target", cfg.Router.NotifyTarget, "fixed base URL for connection notifications (default: URL from the envelope)")
	fs.StringVar(&cfg.Router.ConnectedPath, "connected-path", cfg.Router.ConnectedPath, "path appended to the base URL for connection notifications")
	fs.StringVar(&cfg.Router.ErrorPath, "error-path", cfg.Router.ErrorPath, "path appended to known URLs for parse error notifications")
	fs.IntVar(&cfg.Notifier.Workers, "notify.workers", cfg.Notifier.Workers, "notifier: concurrent outbound requests")
	fs.IntVar(&cfg.Notifier.QueueSize, "notify.queue", cfg.Notifier.QueueSize, "notifier: pending notifications before dropping")
	fs.DurationVar(&cfg.Notifier.Timeout, "notify.timeout", cfg.Notifier.Timeout, "notifier: per request timeout")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *path != "" {
		set := make(map[string]string)
		fs.Visit(func(f *pflag.Flag) { set[f.Name] = f.Value.String() })
		if err := cfg.load(*path); err != nil {
			return nil, err
		}
		for name, value := range set {
			if err := fs.Set(name, value); err != nil {
				return nil, fmt.Errorf("reapply flag %s: %w", name, err)
			}
		}
	}
	return cfg, cfg.validate()
}

func (c *config) load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *config) validate() error {
	if _, err := newIDGenerator(c.IDs); err != nil {
		return err
	}
	if c.RelayAddr == "" || c.HTTPAddr == "" {
		return fmt.Errorf("both listen addresses are required")
	}
	if c.ReadLimit <= 0 {
		return fmt.Errorf("read limit must be positive, got %d", c.ReadLimit)
	}
	if c.Router.PromoteText == "" || c.Router.ConnectedText == "" {
		return fmt.Errorf("trigger texts must not be empty")
	}
	return nil
}
