package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"shipscore.ai/internal/analysis"
	"shipscore.ai/internal/vschem/model"
	"shipscore.ai/internal/vschem/schemtest"
)

type fixture struct {
	dir    string
	config string
	ship   string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	scores := filepath.Join(dir, "BlockScores.json")
	require.NoError(t, os.WriteFile(scores, []byte(`{"BlockScores":[{"Name":"stone","Score":2},{"Name":"oak","Score":5}]}`), 0o644))

	cfg := filepath.Join(dir, "analyser.yaml")
	yml := "score_table: " + scores + "\n" + "data_dir: " + filepath.Join(dir, "data") + "\n"
	require.NoError(t, os.WriteFile(cfg, []byte(yml), 0o644))

	doc := schemtest.NewDoc()
	stone := doc.State("minecraft:stone", nil)
	cc := doc.State("create:copycat", nil)
	edi := doc.Extra(map[string]any{"id": "create:copycat", "Material": schemtest.StateTag("minecraft:oak_planks", nil)})
	doc.Block("ship", 0, 0, 0, stone, model.NoExtraData)
	doc.Block("ship", 1, 0, 0, stone, model.NoExtraData)
	doc.Block("ship", 2, 0, 0, cc, edi)
	ship := filepath.Join(dir, "ship.vschem")
	require.NoError(t, os.WriteFile(ship, doc.Container(t), 0o644))

	return fixture{dir: dir, config: cfg, ship: ship}
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestAnalyze_Summary(t *testing.T) {
	f := newFixture(t)
	out, _, err := run(t, "analyze", "--config", f.config, "--counts", f.ship)
	require.NoError(t, err)

	// 3 blocks + 2*2 stone + 5*1 oak.
	want := "SCHEMATIC INFO:\n" +
		"Total block count: 3\n" +
		"Total ship count: 1\n" +
		"Total entity count: 0\n\n" +
		"Total ships power: 12\n"
	require.True(t, strings.HasPrefix(out, want), "output:\n%s", out)
	require.Contains(t, out, "minecraft:oak_planks")
	require.Contains(t, out, "minecraft:stone")
}

func TestAnalyze_ReportsFailures(t *testing.T) {
	f := newFixture(t)
	bad := filepath.Join(f.dir, "bad.vschem")
	require.NoError(t, os.WriteFile(bad, []byte{0xFF, 0xFF, 0xFF}, 0o644))

	out, errOut, err := run(t, "analyze", "--config", f.config, f.ship, bad)
	require.Error(t, err)
	require.Contains(t, err.Error(), "1 of 2 files failed")
	require.Contains(t, out, "== "+f.ship)
	require.Contains(t, errOut, bad+": Error:")
}

func TestRecordHistoryTop(t *testing.T) {
	f := newFixture(t)
	out, _, err := run(t, "analyze", "--config", f.config, "--json", "--record", f.ship)
	require.NoError(t, err)

	var rep analysis.Report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	require.NotEmpty(t, rep.ID)
	require.Equal(t, uint64(3), rep.Stats.TotalBlockCount)

	out, _, err = run(t, "history", "--config", f.config)
	require.NoError(t, err)
	require.Contains(t, out, rep.ID)
	require.Contains(t, out, "ship.vschem")

	out, _, err = run(t, "history", "--config", f.config, "--journal", "--digest", rep.Digest)
	require.NoError(t, err)
	require.Contains(t, out, rep.ID)

	out, _, err = run(t, "history", "--config", f.config, "--digest", "nope")
	require.NoError(t, err)
	require.NotContains(t, out, rep.ID)

	out, _, err = run(t, "top", "--config", f.config, rep.ID)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	require.Contains(t, lines[1], "minecraft:stone")
	require.Contains(t, lines[2], "minecraft:oak_planks")

	_, _, err = run(t, "top", "--config", f.config, "missing")
	require.Error(t, err)
}
