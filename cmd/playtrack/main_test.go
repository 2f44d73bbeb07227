package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the CLI against a private database and PID file.
func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("PLAYTRACK_DB_PATH", filepath.Join(dir, "playtrack.db"))
	t.Setenv("PLAYTRACK_PID_FILE", filepath.Join(dir, "playtrack.pid"))
	t.Setenv("PLAYTRACK_LOG_DIR", dir)

	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(append([]string{"--config", filepath.Join(dir, "missing.toml")}, args...))

	err := cmd.Execute()
	return buf.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := run(t, t.TempDir(), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "playtrack dev")
	assert.Contains(t, out, "commit: none")
}

func TestRootCmdHasCommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range newRootCmd().Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"start", "serve", "stop", "status", "report", "apps", "candidates", "add", "add-time", "settings", "version"} {
		assert.True(t, names[want], "missing command %q", want)
	}
}

func TestAddAndReport(t *testing.T) {
	dir := t.TempDir()

	_, err := run(t, dir, "settings", "set", "Application", "user_name", "Sam")
	require.NoError(t, err)

	out, err := run(t, dir, "add", "--name", "Hades", "--exe", "/games/hades/Hades.exe", "--initial", "2h")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Added Hades")

	out, err = run(t, dir, "add-time", "1", "30m")
	require.NoError(t, err, out)
	assert.Contains(t, out, "30 minutes")

	out, err = run(t, dir, "apps")
	require.NoError(t, err)
	assert.Contains(t, out, "Hades")

	out, err = run(t, dir, "report", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"total_seconds": 9000`)

	out, err = run(t, dir, "settings", "get", "Application", "user_name")
	require.NoError(t, err)
	assert.Equal(t, "Sam", strings.TrimSpace(out))
}

func TestAddValidation(t *testing.T) {
	dir := t.TempDir()

	_, err := run(t, dir, "add", "--exe", "/games/x")
	assert.Error(t, err)

	_, err = run(t, dir, "add", "--name", "Nothing")
	assert.Error(t, err)

	_, err = run(t, dir, "add-time", "abc", "1h")
	assert.Error(t, err)
}

func TestStatusWithoutDaemon(t *testing.T) {
	out, err := run(t, t.TempDir(), "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Status: Not running")
}

func TestStopWithoutDaemon(t *testing.T) {
	out, err := run(t, t.TempDir(), "stop")
	require.NoError(t, err)
	assert.Contains(t, out, "Daemon is not running")
}

func TestParseSeconds(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		err  bool
	}{
		{in: "90", want: 90},
		{in: "1h30m", want: 5400},
		{in: "45s", want: 45},
		{in: "soon", err: true},
	}

	for _, tt := range tests {
		got, err := parseSeconds(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
