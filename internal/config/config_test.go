package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setCredentials(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv(ConfigPathEnvVar, "")
	t.Setenv("SPOTIFY_CLIENT_ID", "id")
	t.Setenv("SPOTIFY_CLIENT_SECRET", "secret")
}

func TestLoad_Defaults(t *testing.T) {
	setCredentials(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "id", cfg.Spotify.ClientID)
	assert.Equal(t, 12, cfg.Playlist.MaxSize)
	assert.Equal(t, 6, cfg.Playlist.MinSize)
	assert.Equal(t, 3, cfg.Classifier.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Classifier.Backoff)
	assert.Equal(t, 10, cfg.Catalog.PerStyleLimit)
	assert.Equal(t, int64(5<<20), cfg.Image.MaxUploadBytes)
	assert.True(t, cfg.Classifier.FallbackOnFailure)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	setCredentials(t)
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test,")
	t.Setenv("CLASSIFIER_URL", "http://classifier:5000")
	t.Setenv("CLASSIFIER_TIMEOUT", "5s")
	t.Setenv("CLASSIFIER_FALLBACK_ON_FAILURE", "false")
	t.Setenv("STORAGE_DRIVER", "none")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "http://classifier:5000", cfg.Classifier.URL)
	assert.Equal(t, 5*time.Second, cfg.Classifier.Timeout)
	assert.False(t, cfg.Classifier.FallbackOnFailure)
	assert.Equal(t, "none", cfg.Storage.Driver)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_FileThenEnvironment(t *testing.T) {
	setCredentials(t)
	path := filepath.Join(t.TempDir(), "scenesound.yaml")
	yaml := "playlist:\n  max_size: 8\n  min_size: 4\ncatalog:\n  concurrency: 2\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("CATALOG_CONCURRENCY", "6")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Playlist.MaxSize)
	assert.Equal(t, 4, cfg.Playlist.MinSize)
	assert.Equal(t, 6, cfg.Catalog.Concurrency)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing client id", env: map[string]string{"SPOTIFY_CLIENT_ID": ""}},
		{name: "top k out of range", env: map[string]string{"CLASSIFIER_TOP_K": "9"}},
		{name: "min above max", env: map[string]string{"PLAYLIST_MIN_SIZE": "20"}},
		{name: "unknown storage driver", env: map[string]string{"STORAGE_DRIVER": "postgres"}},
		{name: "unknown log format", env: map[string]string{"LOG_FORMAT": "xml"}},
		{name: "request timeout below upstream budget", env: map[string]string{"SERVER_REQUEST_TIMEOUT": "120s"}},
		{name: "classifier retries outgrow request timeout", env: map[string]string{"CLASSIFIER_MAX_ATTEMPTS": "5"}},
		{name: "max pixels zero", env: map[string]string{"IMAGE_MAX_PIXELS": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setCredentials(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestUpstreamBudget(t *testing.T) {
	cfg := Default()

	// 3 x 30s attempts plus 1s and 2s of linear backoff.
	assert.Equal(t, 93*time.Second, cfg.ClassifierBudget())
	// 3 x 10s attempts plus 500ms and 1s of exponential backoff.
	assert.Equal(t, 31500*time.Millisecond, cfg.CatalogCallBudget())
	assert.GreaterOrEqual(t, cfg.Server.RequestTimeout, cfg.ClassifierBudget()+2*cfg.CatalogCallBudget())

	cfg.Spotify.ClientID, cfg.Spotify.ClientSecret = "id", "secret"
	require.NoError(t, cfg.Validate())

	cfg.Server.RequestTimeout = cfg.ClassifierBudget()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request_timeout")
}

func TestEnvTransformFunc(t *testing.T) {
	tests := map[string]string{
		"SPOTIFY_CLIENT_ID":       "spotify.client_id",
		"CLASSIFIER_URL":          "classifier.url",
		"CLASSIFIER_TOP_K":        "classifier.top_k",
		"HTTP_ADDR":               "server.addr",
		"LOG_FORMAT":              "logging.format",
		"STORAGE_PATH":            "storage.path",
		"CATALOG_PER_STYLE_LIMIT": "catalog.per_style_limit",
		"PATH":                    "",
		"HOME_DIR":                "",
	}
	for in, want := range tests {
		assert.Equal(t, want, envTransformFunc(in), in)
	}
}
