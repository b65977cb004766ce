package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/Tiliavir/quarter-tracker/internal/config"
)

func TestLoadFileWritesTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qt", "config.json")

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, config.Default(), cfg)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	// The template must parse to the same defaults it documents.
	parsed, err := config.Parse(data)
	require.NoError(t, err)
	if diff := cmp.Diff(config.Default(), parsed); diff != "" {
		t.Errorf("template mismatch (-want +got):\n%s", diff)
	}

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want func(*config.Config)
	}{
		{
			name: "empty object",
			in:   `{}`,
			want: func(*config.Config) {},
		},
		{
			name: "comments and trailing commas",
			in: `{
				// block
				"user_id": "alice", /* inline */
				"store": {"driver": "file", "path": "/tmp/qt",},
			}`,
			want: func(c *config.Config) {
				c.UserID = "alice"
				c.Store.Driver = "file"
				c.Store.Path = "/tmp/qt"
			},
		},
		{
			name: "http store",
			in:   `{"store": {"driver": "http", "url": "http://localhost:8080", "token": "t"}, "log_level": "debug"}`,
			want: func(c *config.Config) {
				c.Store = config.StoreConfig{Driver: "http", URL: "http://localhost:8080", Token: "t"}
				c.LogLevel = "debug"
			},
		},
		{
			name: "partial outlook",
			in:   `{"outlook": {"timezone": "Europe/Berlin"}}`,
			want: func(c *config.Config) { c.Outlook.Timezone = "Europe/Berlin" },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := config.Default()
			tt.want(&want)
			got, err := config.Parse([]byte(tt.in))
			require.NoError(t, err)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"not json", `{"user_id": `},
		{"wrong type", `{"user_id": 5}`},
		{"unknown driver", `{"store": {"driver": "mongo"}}`},
		{"postgres without dsn", `{"store": {"driver": "postgres"}}`},
		{"http without url", `{"store": {"driver": "http"}}`},
		{"bad level", `{"log_level": "loud"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Parse([]byte(tt.in))
			require.ErrorIs(t, err, config.ErrInvalid)
		})
	}
}

func TestLoadFileInvalidKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"store": {"driver": "mongo"}}`), 0o600))

	cfg, err := config.LoadFile(path)
	require.ErrorIs(t, err, config.ErrInvalid)
	require.Equal(t, config.Default(), cfg)
}

func TestParseLevel(t *testing.T) {
	l, err := config.ParseLevel("DEBUG")
	require.NoError(t, err)
	require.Equal(t, slog.LevelDebug, l)

	l, err = config.ParseLevel(" error ")
	require.NoError(t, err)
	require.Equal(t, slog.LevelError, l)
}
