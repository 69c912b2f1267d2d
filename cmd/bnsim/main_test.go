package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func runCapture(args ...string) (int, string, string) {
	var out, errOut bytes.Buffer
	code := run(args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestRunRejectsMalformedNumbers(t *testing.T) {
	for _, args := range [][]string{
		{"-b", "fast"},
		{"-d", "soon"},
		{"-q", "deep"},
		{"-t", "long"},
	} {
		code, out, errOut := runCapture(args...)
		require.Equal(t, 1, code, args)
		require.Empty(t, out, args)
		require.Contains(t, errOut, "invalid", args)
	}
}

func TestRunRejectsUnknownController(t *testing.T) {
	code, out, errOut := runCapture("-c", "bbr")
	require.Equal(t, 1, code)
	require.Empty(t, out)
	require.Equal(t, "unknown congestion controller: bbr\n", errOut)
}

func TestRunHelpPrintsUsage(t *testing.T) {
	code, out, _ := runCapture("-h")
	require.Equal(t, 0, code)
	require.True(t, strings.HasPrefix(out, "Usage:"))
}

func TestRunUnknownFlagPrintsUsage(t *testing.T) {
	code, out, _ := runCapture("-z")
	require.Equal(t, 0, code)
	require.Contains(t, out, "Usage:")
}

func TestRunRejectsMissingScenarioFile(t *testing.T) {
	code, out, errOut := runCapture("-x", filepath.Join(t.TempDir(), "absent.yaml"))
	require.Equal(t, 1, code)
	require.Empty(t, out)
	require.Contains(t, errOut, "cannot read scenario file")
}

func TestRunEmitsEventLog(t *testing.T) {
	code, out, errOut := runCapture("-t", "0.5")
	require.Equal(t, 0, code)
	require.Empty(t, errOut)
	require.True(t, strings.HasPrefix(out, "enqueue "))
}
