package main

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcg_catalog/config"
	"tcg_catalog/handlers"
)

func TestEmbeddedFiles(t *testing.T) {
	staticFS, err := getStaticFS()
	require.NoError(t, err)
	for _, name := range []string{"index.html", "app.js", "style.css"} {
		_, err := fs.Stat(staticFS, name)
		assert.NoError(t, err, name)
	}

	docsFS, err := getDocsFS()
	require.NoError(t, err)
	doc, err := fs.ReadFile(docsFS, handlers.SearchDocFile)
	require.NoError(t, err)
	assert.Contains(t, string(doc), "# Card Search Syntax")
}

func TestNewLogger(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, newLogger("debug").GetLevel())
	assert.Equal(t, zerolog.InfoLevel, newLogger("bogus").GetLevel())
	assert.Equal(t, zerolog.InfoLevel, newLogger("").GetLevel())
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv(config.EnvListen, "127.0.0.1:9100")

	cfg, err := loadConfig(filepath.Join(t.TempDir(), "catalog.json"), zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9100", cfg.Listen)
	assert.Equal(t, "data", cfg.DataPath)
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		// sqlite is the only embedded driver
		"database": {"driver": "mysql", "dsn": "x"},
	}`), 0644))

	_, err := loadConfig(path, zerolog.Nop())
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestApp_ServeStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Listen = "127.0.0.1:0"
	cfg.DataPath = dir
	cfg.Database = config.DatabaseConfig{Driver: "sqlite", DSN: filepath.Join(dir, "collections.db")}

	a, err := newApp(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.close()
	assert.FileExists(t, filepath.Join(dir, "collections.db"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

func TestNewApp_DatabaseError(t *testing.T) {
	cfg := config.Default()
	cfg.DataPath = t.TempDir()
	cfg.Database = config.DatabaseConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "missing", "dir", "c.db")}

	_, err := newApp(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}
