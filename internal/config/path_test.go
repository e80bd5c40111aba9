package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("AUGUR_TEST_DIR", "/srv/data")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "plain path untouched", input: "/var/lib/augur.db", want: "/var/lib/augur.db"},
		{name: "tilde prefix", input: "~/augur.db", want: filepath.Join(home, "augur.db")},
		{name: "bare tilde", input: "~", want: home},
		{name: "env var", input: "$AUGUR_TEST_DIR/augur.db", want: "/srv/data/augur.db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandPath(tt.input))
		})
	}
}

func TestDatabasePath(t *testing.T) {
	t.Run("configured path wins", func(t *testing.T) {
		t.Setenv("XDG_DATA_HOME", "/xdg")
		assert.Equal(t, "/tmp/my.db", DatabasePath("/tmp/my.db"))
	})

	t.Run("xdg data home", func(t *testing.T) {
		t.Setenv("XDG_DATA_HOME", "/xdg")
		assert.Equal(t, filepath.Join("/xdg", "augur", "augur.db"), DatabasePath(""))
	})

	t.Run("falls back to home", func(t *testing.T) {
		t.Setenv("XDG_DATA_HOME", "")
		home, err := os.UserHomeDir()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(home, ".local", "share", "augur", "augur.db"), DatabasePath(""))
	})
}
