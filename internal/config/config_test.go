package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 400, cfg.HeaderMaxLength)
	require.Equal(t, []string{"copycats", "framedblocks", "create:copycat"}, cfg.NamespacePrefixes)
	require.Equal(t, filepath.Join("data", "reports"), filepath.Clean(cfg.JournalDir))
	require.Equal(t, filepath.Join("data", "index", "analyses.sqlite"), filepath.Clean(cfg.IndexDB))
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analyser.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
score_table: /etc/shipscore/scores.yaml
watch_score_table: false
max_upload_bytes: 1024
data_dir: /var/lib/shipscore
namespace_prefixes: [" copycats ", "", "framedblocks"]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/etc/shipscore/scores.yaml", cfg.ScoreTable)
	require.False(t, cfg.WatchScoreTable)
	require.Equal(t, int64(1024), cfg.MaxUploadBytes)
	require.Equal(t, []string{"copycats", "framedblocks"}, cfg.NamespacePrefixes)
	require.Equal(t, "/var/lib/shipscore/reports", cfg.JournalDir)
	require.Equal(t, 400, cfg.HeaderMaxLength)
}

func TestLoad_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analyser.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_upload_bytes: 0\n"), 0o644))
	_, err := Load(path)
	require.ErrorContains(t, err, "max_upload_bytes")

	require.NoError(t, os.WriteFile(path, []byte("namespace_prefixes: [\"\"]\n"), 0o644))
	_, err = Load(path)
	require.ErrorContains(t, err, "namespace_prefixes")

	require.NoError(t, os.WriteFile(path, []byte("score_table: [\n"), 0o644))
	_, err = Load(path)
	require.Error(t, err)
}

func TestLoad_JournalMirror(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analyser.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
journal_mirror:
  endpoint: " https://acct.r2.cloudflarestorage.com "
  bucket: ship-reports
  prefix: prod
`), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	require.True(t, cfg.JournalMirror.Enabled())
	require.Equal(t, "https://acct.r2.cloudflarestorage.com", cfg.JournalMirror.Endpoint)

	require.NoError(t, os.WriteFile(path, []byte("journal_mirror:\n  bucket: only-bucket\n"), 0o644))
	_, err = Load(path)
	require.ErrorContains(t, err, "journal_mirror")

	cfg, err = Load("")
	require.NoError(t, err)
	require.False(t, cfg.JournalMirror.Enabled())
}
