package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertextoedge/sharelink/internal/adapter/jwtauth"
)

// setupEnv points the configuration at a temporary database and file root
func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("SHARELINK_DATABASE_PATH", filepath.Join(dir, "sharelink.db"))
	t.Setenv("SHARELINK_STORAGE_LOCAL_ROOT_DIR", filepath.Join(dir, "files"))
	t.Setenv("SHARELINK_LOGGING_LEVEL", "error")
	t.Setenv("SHARELINK_AUTH_JWT_SECRET", "cli-test-secret")
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := newRootCmd()
	names := make([]string, 0)
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "sweep", "cleanup", "suspicious", "usage", "token", "import"} {
		assert.Contains(t, names, want)
	}
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestSweepAndUsage(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "sweep")
	require.NoError(t, err)
	var sweep map[string]int
	require.NoError(t, json.Unmarshal([]byte(out), &sweep))
	assert.Equal(t, 0, sweep["expired"])
	assert.Equal(t, 0, sweep["exhausted"])

	out, err = run(t, "usage")
	require.NoError(t, err)
	var usage map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &usage))
	assert.Contains(t, usage, "health")
	assert.Contains(t, usage, "shares")
}

func TestCleanupAndSuspicious(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "cleanup", "--retention-days", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "access_logs_deleted")

	out, err = run(t, "suspicious", "--window", "30m", "--threshold", "5")
	require.NoError(t, err)
	var report map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "30m0s", report["window"])
	assert.EqualValues(t, 5, report["threshold"])

	_, err = run(t, "cleanup", "--retention-days", "-1")
	assert.Error(t, err)
}

func TestTokenCommand(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "token", "--user", "7", "--ttl", "1h")
	require.NoError(t, err)

	verifier, err := jwtauth.NewVerifier("cli-test-secret", "", 0)
	require.NoError(t, err)
	userID, err := verifier.Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, int64(7), userID)

	_, err = run(t, "token")
	assert.Error(t, err)
}

func TestImportCommand(t *testing.T) {
	dir := setupEnv(t)

	src := filepath.Join(dir, "report.txt")
	require.NoError(t, os.WriteFile(src, []byte("quarterly numbers"), 0o644))

	out, err := run(t, "import", "--id", "42", "--owner", "7", src)
	require.NoError(t, err)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "report.txt", result["name"])
	assert.EqualValues(t, len("quarterly numbers"), result["size"])

	_, err = os.Stat(filepath.Join(dir, "files", "42", "data"))
	assert.NoError(t, err)

	_, err = run(t, "import", "--id", "0", "--owner", "7", src)
	assert.Error(t, err)
}
