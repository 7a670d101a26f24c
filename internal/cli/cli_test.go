package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedgraph/feedgraph/internal/model"
)

func TestParseKey(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    model.Key
		wantErr bool
	}{
		{
			name: "twitter key with empty domain segment",
			in:   "twitter//1729384750123",
			want: model.Key{Source: model.SourceTwitter, RemoteID: "1729384750123"},
		},
		{
			name: "mastodon key",
			in:   "mastodon/hachyderm.io/109348203",
			want: model.Key{Source: model.SourceMastodon, Domain: "hachyderm.io", RemoteID: "109348203"},
		},
		{name: "missing segments", in: "twitter/100", wantErr: true},
		{name: "missing remote id", in: "twitter//", wantErr: true},
		{name: "missing source", in: "//100", wantErr: true},
		{name: "empty", in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseKey(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadConfig_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "feedgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte("driver: postgres\ndsn: postgres://localhost/feedgraph\n"), 0o644))

	t.Setenv("FEEDGRAPH_DRIVER", "")
	t.Setenv("FEEDGRAPH_DSN", "")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Driver)
	assert.Equal(t, "postgres://localhost/feedgraph", cfg.DSN)

	t.Setenv("FEEDGRAPH_DRIVER", "sqlite")
	t.Setenv("FEEDGRAPH_DSN", "/tmp/graph.db")
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Driver)
	assert.Equal(t, "/tmp/graph.db", cfg.DSN)
}

func TestLoadConfig_DefaultsWithoutFile(t *testing.T) {
	t.Setenv("FEEDGRAPH_DRIVER", "")
	t.Setenv("FEEDGRAPH_DSN", "")
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Driver)
	assert.Empty(t, cfg.DSN)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestConfigOpenStore_Validation(t *testing.T) {
	_, err := Config{Driver: "sqlite"}.OpenStore()
	assert.ErrorContains(t, err, "no dsn configured")

	_, err = Config{Driver: "mysql", DSN: "x"}.OpenStore()
	assert.ErrorContains(t, err, "unknown driver")
}
