package bnsim

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScenarioCfgDefaults(t *testing.T) {
	cfg := DefaultScenarioCfg()
	require.Equal(t, 1e6, cfg.Bandwidth)
	require.Equal(t, 0.1, cfg.Delay)
	require.Equal(t, 0.1, cfg.Depth)
	require.Equal(t, "reno", cfg.CC)
	require.Equal(t, 1000.0, cfg.StartTime)
	require.Equal(t, 50.0, cfg.Horizon)
	require.NoError(t, cfg.Validate())
}

func TestScenarioCfgPartialYAMLKeepsDefaults(t *testing.T) {
	dict := []byte("name: narrow\nbandwidth: 125000\ncc: cubic\n")
	cfg, err := ReadScenarioCfg("", true, dict)
	require.NoError(t, err)
	require.Equal(t, "narrow", cfg.Name)
	require.Equal(t, 125000.0, cfg.Bandwidth)
	require.Equal(t, "cubic", cfg.CC)
	require.Equal(t, 0.1, cfg.Delay)
	require.Equal(t, 50.0, cfg.Horizon)
}

func TestScenarioCfgFileRoundTrip(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"scenario.yaml", "scenario.json"} {
		cfg := DefaultScenarioCfg()
		cfg.Name = "roundtrip"
		cfg.Depth = 0.25
		fn := filepath.Join(dir, name)
		require.NoError(t, cfg.WriteToFile(fn))

		useYAML := filepath.Ext(fn) == ".yaml"
		read, err := ReadScenarioCfg(fn, useYAML, []byte{})
		require.NoError(t, err)
		require.Equal(t, cfg, read)
	}
}

func TestScenarioCfgValidate(t *testing.T) {
	cfg := DefaultScenarioCfg()
	cfg.Bandwidth = 0.0
	require.Error(t, cfg.Validate())

	cfg = DefaultScenarioCfg()
	cfg.Delay = -1.0
	require.Error(t, cfg.Validate())

	cfg = DefaultScenarioCfg()
	cfg.Horizon = 0.0
	require.Error(t, cfg.Validate())

	// a zero depth is a legitimate (fully lossy) scenario
	cfg = DefaultScenarioCfg()
	cfg.Depth = 0.0
	require.NoError(t, cfg.Validate())
}

func TestScenarioCfgUnknownExtension(t *testing.T) {
	cfg := DefaultScenarioCfg()
	require.Error(t, cfg.WriteToFile("scenario.txt"))
}

func TestScenarioCfgMissingFile(t *testing.T) {
	_, err := ReadScenarioCfg(filepath.Join(t.TempDir(), "absent.yaml"), true, []byte{})
	require.Error(t, err)
}
