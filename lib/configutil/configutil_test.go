package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Endpoint string            `json:"endpoint"`
	Timeout  int               `json:"timeout"`
	Sources  map[string]string `json:"sources"`
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	err := os.WriteFile(path, []byte(contents), 0600)
	if err != nil {
		t.Fatal(err)
	}
}

func TestReadConfigLocalOverride(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "harvester.json5")

	writeFile(t, name, `{
		// comments are allowed
		endpoint: "wss://example.com",
		timeout: 30,
	}`)
	writeFile(t, filepath.Join(dir, "harvester.local.json5"), `{ timeout: 5 }`)

	cfg, err := ReadConfig[testConfig](name)
	require.NoError(t, err)
	require.Equal(t, "wss://example.com", cfg.Endpoint)
	require.Equal(t, 5, cfg.Timeout)
}

func TestReadConfigMissing(t *testing.T) {
	_, err := ReadConfig[testConfig](filepath.Join(t.TempDir(), "nothing.json5"))
	require.True(t, os.IsNotExist(err))
}

func TestReadWithDefaults(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "harvester.json5")
	defaults := testConfig{Endpoint: "default", Timeout: 10}

	cfg, err := ReadWithDefaults(name, defaults)
	require.NoError(t, err)
	require.Equal(t, defaults, cfg)

	writeFile(t, name, `{ endpoint: "configured" }`)
	cfg, err = ReadWithDefaults(name, defaults)
	require.NoError(t, err)
	require.Equal(t, "configured", cfg.Endpoint)
	require.Equal(t, 10, cfg.Timeout)
}

func TestLocalPath(t *testing.T) {
	require.Equal(t, filepath.Join("a", "b.local.json5"), LocalPath(filepath.Join("a", "b.json5")))
}
