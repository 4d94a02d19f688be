package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"catalog-harvester/lib/configutil"
	"catalog-harvester/lib/manifest"
	"catalog-harvester/lib/navigator"
	"catalog-harvester/lib/navigator/browser"
	"catalog-harvester/lib/navigator/static"
	"catalog-harvester/lib/notify"
	"catalog-harvester/lib/restyutil"
	"catalog-harvester/lib/sources"

	"github.com/go-resty/resty/v2"
)

type BrowserConfig struct {
	// remote devtools websocket, a local chrome is started when empty
	Endpoint string `json:"endpoint"`
	Token    string `json:"token"`
	// shows the browser window of a local chrome
	Headful    bool `json:"headful"`
	SettleMs   int  `json:"settle_ms"`
	TimeoutSec int  `json:"timeout_sec"`
}

type HttpConfig struct {
	UserAgent        string `json:"user_agent"`
	TimeoutSec       int    `json:"timeout_sec"`
	CloudflareBypass bool   `json:"cloudflare_bypass"`
}

type Config struct {
	Browser  BrowserConfig             `json:"browser"`
	Http     HttpConfig                `json:"http"`
	Sources  map[string]sources.Preset `json:"sources"`
	Manifest manifest.Config           `json:"manifest"`
	Notify   notify.Config             `json:"notify"`
	// directory that request dumps are written to with --debug
	DebugDumps   string `json:"debug_dumps"`
	PerfStatsSec int    `json:"perf_stats_sec"`
}

var defaultConfig = Config{
	Browser: BrowserConfig{
		SettleMs:   2000,
		TimeoutSec: 60,
	},
	Http: HttpConfig{
		UserAgent:  restyutil.DefaultUserAgent,
		TimeoutSec: 30,
	},
	Manifest: manifest.Config{
		File: "data/manifest.db",
	},
}

func LoadConfig(path string) (Config, error) {
	config, err := configutil.ReadWithDefaults(path, defaultConfig)
	if err != nil {
		return Config{}, err
	}
	if config.Browser.Token == "" {
		config.Browser.Token = os.Getenv("BROWSERLESS_API_KEY")
	}
	return config, nil
}

func newHttpClient(config Config) (*resty.Client, error) {
	opts := restyutil.ClientOptions{
		UserAgent:        config.Http.UserAgent,
		Timeout:          time.Duration(config.Http.TimeoutSec) * time.Second,
		CloudflareBypass: config.Http.CloudflareBypass,
		TracerName:       "catalog-harvester/http",
	}
	if debug && config.DebugDumps != "" {
		output, err := restyutil.NewFilesystemOutput(config.DebugDumps)
		if err != nil {
			return nil, err
		}
		opts.Output = output
	}
	return restyutil.NewClient(opts)
}

func openSession(ctx context.Context, config Config, backend string) (navigator.Session, func(), error) {
	switch backend {
	case sources.BackendStatic:
		client, err := newHttpClient(config)
		if err != nil {
			return nil, nil, err
		}
		return static.New(client), func() {}, nil
	case sources.BackendBrowser:
		slog.InfoContext(ctx, "starting browser session", "remote", config.Browser.Endpoint != "")
		sess, cancel, err := browser.New(ctx, browser.Options{
			Endpoint:  config.Browser.Endpoint,
			Token:     config.Browser.Token,
			Headless:  !config.Browser.Headful,
			UserAgent: config.Http.UserAgent,
			Settle:    time.Duration(config.Browser.SettleMs) * time.Millisecond,
			Timeout:   time.Duration(config.Browser.TimeoutSec) * time.Second,
		})
		if err != nil {
			return nil, nil, err
		}
		return sess, cancel, nil
	}
	return nil, nil, fmt.Errorf("unknown backend %q, expected %q or %q", backend, sources.BackendStatic, sources.BackendBrowser)
}

// openManifest returns nil when no manifest is configured.
func openManifest(config Config) (*manifest.Store, error) {
	if !config.Manifest.Enabled() {
		return nil, nil
	}
	store, err := manifest.Open(config.Manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	return &store, nil
}
