package commands

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"catalog-harvester/lib/sources"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "harvester.json5")
	require.NoError(t, os.WriteFile(path, []byte(`{
		// remote browser
		browser: { endpoint: "wss://chrome.browserless.io" },
		http: { cloudflare_bypass: true },
		sources: {
			"aws-whitepapers": { source: { pages: 3 } },
		},
	}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "harvester.local.json5"), []byte(`{
		notify: { smtp_addr: "localhost:25", from: "a@example.com", to: ["b@example.com"] },
	}`), 0o644))
	t.Setenv("BROWSERLESS_API_KEY", "from-env")

	config, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "wss://chrome.browserless.io", config.Browser.Endpoint)
	require.Equal(t, "from-env", config.Browser.Token)
	require.Equal(t, 2000, config.Browser.SettleMs)
	require.True(t, config.Http.CloudflareBypass)
	require.Equal(t, 30, config.Http.TimeoutSec)
	require.Equal(t, "data/manifest.db", config.Manifest.File)
	require.True(t, config.Notify.Enabled())

	preset, err := sources.Lookup("aws-whitepapers", config.Sources)
	require.NoError(t, err)
	require.Equal(t, 3, preset.Source.Pages)
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Setenv("BROWSERLESS_API_KEY", "")
	config, err := LoadConfig(filepath.Join(t.TempDir(), "harvester.json5"))
	require.NoError(t, err)
	require.Equal(t, defaultConfig, config)
}

func TestOpenSessionUnknownBackend(t *testing.T) {
	_, _, err := openSession(context.Background(), defaultConfig, "carrier-pigeon")
	require.ErrorContains(t, err, "unknown backend")
}
