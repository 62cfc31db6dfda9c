package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/afinia/internal/config"
	"github.com/danielpatrickdp/afinia/internal/params"
	"github.com/danielpatrickdp/afinia/internal/state"
)

// execute runs the root command with args and returns combined output.
// Flag variables are package globals, so they are reset first.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfgFile = ""
	inspectHistory, inspectTurns, inspectJSON = 0, 0, false
	replayJSON, initForce = false, false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// sqliteConfig writes a config file pointing the store at a temp database.
func sqliteConfig(t *testing.T) (cfgPath, dbPath string) {
	t.Helper()
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "afinia.db")
	body := "[log]\nlevel = \"error\"\n\n[store]\nbackend = \"sqlite\"\npath = \"" + dbPath + "\"\n"
	cfgPath = filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o644))
	return cfgPath, dbPath
}

func TestReplayCommand(t *testing.T) {
	fixture := filepath.Join("..", "..", "..", "internal", "replay", "testdata", "basic.json")
	out, err := execute(t, "replay", fixture)
	require.NoError(t, err, out)

	assert.Contains(t, out, "Comunicación 10→20")
	assert.Contains(t, out, "Turns: 4  Commits: 2  No-ops: 2  Malformed: 1")
}

func TestReplayCommand_FailedExpectation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.json")
	body := `{"turns":[{"turn_id":"t1","message":"hola","response_text":"hola"}],
	          "expected":{"actions":[{"turn_id":"t1","action":"commit"}]}}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	out, err := execute(t, "replay", path)
	require.Error(t, err)
	assert.Contains(t, out, "FAIL t1: want commit, got no_op")
}

func TestInspectAndRollback(t *testing.T) {
	cfgPath, dbPath := sqliteConfig(t)

	store, err := state.NewSQLiteStore(dbPath, params.DefaultValue, zap.NewNop())
	require.NoError(t, err)
	first := params.Defaults(params.DefaultValue)
	first[params.Carisma] = 30
	second := first.Clone()
	second[params.Carisma] = 40
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "ana", first))
	require.NoError(t, store.Save(ctx, "ana", second))
	versions, err := store.ListVersions(ctx, "ana", 10)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	require.NoError(t, store.Close())

	out, err := execute(t, "--config", cfgPath, "inspect", "ana")
	require.NoError(t, err, out)
	assert.Contains(t, out, versions[0].VersionID)
	assert.Regexp(t, `Carisma\s+40`, out)

	out, err = execute(t, "--config", cfgPath, "inspect", "ana", "--history", "5")
	require.NoError(t, err, out)
	assert.Contains(t, out, shortID(versions[1].VersionID))

	out, err = execute(t, "--config", cfgPath, "rollback", "ana", versions[1].VersionID)
	require.NoError(t, err, out)

	out, err = execute(t, "--config", cfgPath, "inspect", "ana", "--json")
	require.NoError(t, err, out)
	assert.Contains(t, out, `"version_id": "`+versions[1].VersionID+`"`)
	assert.Contains(t, out, `"Carisma": 30`)
}

func TestInspect_TurnsDisabled(t *testing.T) {
	cfgPath, _ := sqliteConfig(t)
	_, err := execute(t, "--config", cfgPath, "inspect", "ana", "--turns", "5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provenance log disabled")
}

func TestRollback_FileBackend(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	body := "[log]\nlevel = \"error\"\n\n[store]\nbackend = \"file\"\ndir = \"" + filepath.Join(dir, "users") + "\"\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o644))

	_, err := execute(t, "--config", cfgPath, "rollback", "ana", "v1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keeps no history")
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "afinia", "config.toml")

	out, err := execute(t, "--config", path, "config", "init")
	require.NoError(t, err, out)
	assert.FileExists(t, path)

	_, err = execute(t, "--config", path, "config", "init")
	require.Error(t, err)

	_, err = execute(t, "--config", path, "config", "init", "--force")
	require.NoError(t, err)
}

func TestBuildApp(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Store.Dir = filepath.Join(dir, "users")
	cfg.Provenance.Path = filepath.Join(dir, "log", "turns.db")
	cfg.LLM.APIKey = "test-key"

	a, err := buildApp(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, a.orch)
	assert.FileExists(t, cfg.Provenance.Path)
	require.NoError(t, a.Close())
}

func TestBuildApp_MissingKey(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Dir = filepath.Join(t.TempDir(), "users")

	_, err := buildApp(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
}

func TestChatLoop(t *testing.T) {
	var seen []string
	turn := func(_ context.Context, msg string) (turnLine, error) {
		seen = append(seen, msg)
		if msg == "falla" {
			return turnLine{}, errors.New("model down")
		}
		return turnLine{reply: "eco: " + msg, turnID: "t1", changes: []string{"Carisma 10→15"}}, nil
	}

	in := strings.NewReader("hola\n\nfalla\nquit\nignored\n")
	var out bytes.Buffer
	require.NoError(t, chatLoop(context.Background(), in, &out, turn))

	assert.Equal(t, []string{"hola", "falla"}, seen)
	assert.Contains(t, out.String(), "eco: hola")
	assert.Contains(t, out.String(), "[t1] Carisma 10→15")
	assert.Contains(t, out.String(), "error: model down")
}
