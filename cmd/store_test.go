package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deeplydigital/pole-burndown/internal/config"
)

func TestInitStore_SQLite(t *testing.T) {
	cfg = &config.Config{
		Store: config.StoreConfig{
			Driver:      "sqlite",
			DatabaseURL: filepath.Join(t.TempDir(), "test.db"),
		},
	}

	st, err := openStore(context.Background())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	n, err := st.CountDLQ(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInitStore_SQLiteDefaultDSN(t *testing.T) {
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(t.TempDir()))
	defer os.Chdir(origDir) //nolint:errcheck

	cfg = &config.Config{Store: config.StoreConfig{Driver: "sqlite"}}

	st, err := initStore(context.Background())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	_, err = os.Stat(defaultSQLitePath)
	assert.NoError(t, err)
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	cfg = &config.Config{Store: config.StoreConfig{Driver: "mysql"}}

	_, err := initStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestInitExtractor_MissingPriorities(t *testing.T) {
	cfg = &config.Config{Resolver: config.ResolverConfig{PrioritiesFile: filepath.Join(t.TempDir(), "missing.yaml")}}

	_, err := initExtractor()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load resolver priorities")
}

func TestSinkOptions(t *testing.T) {
	cfg = &config.Config{}
	assert.Empty(t, sinkOptions())

	cfg = &config.Config{
		GIS:    config.GISConfig{Enabled: true, BaseURL: "https://gis.example.com/FeatureServer"},
		Email:  config.EmailConfig{Enabled: true, Host: "smtp.example.com", Port: 587, To: []string{"ops@example.com"}},
		Notion: config.NotionConfig{Token: "secret", BurndownDB: "db-1"},
	}
	assert.Len(t, sinkOptions(), 3)
}
