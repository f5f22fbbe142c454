package cli

import (
	"strings"
	"testing"

	goflags "github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// parseOnly parses args without executing the matched command.
func parseOnly(t *testing.T, args ...string) (*GlobalFlags, *commands, error) {
	t.Helper()
	parser, globals, cmds := buildParser("test")
	parser.CommandHandler = func(goflags.Commander, []string) error { return nil }
	_, err := parser.ParseArgs(args)
	return globals, cmds, err
}

func TestVersionFlag(t *testing.T) {
	var err error
	output := captureOutput(t, func() {
		err = RunWithArgs("0.1.0-test", []string{"--version"})
	})

	assert.NoError(t, err)
	assert.Contains(t, output, "tabtally 0.1.0-test")
}

func TestVersionOutputFormat(t *testing.T) {
	output := captureOutput(t, func() {
		_ = RunWithArgs("1.2.3", []string{"status", "--version"})
	})
	assert.Equal(t, "tabtally 1.2.3", strings.TrimSpace(output))
}

func TestAllSubcommandsExist(t *testing.T) {
	parser, _, _ := buildParser("test")
	for _, name := range []string{"status", "history", "show", "export", "ingest", "purge"} {
		assert.NotNil(t, parser.Find(name), "subcommand %q should exist", name)
	}
}

func TestSubcommandsRecognized(t *testing.T) {
	for _, args := range [][]string{
		{"status"},
		{"history"},
		{"show", "--day", "2030-03-14"},
		{"export", "-o", "out.csv"},
		{"ingest"},
		{"purge", "--all"},
	} {
		_, _, err := parseOnly(t, args...)
		assert.NoError(t, err, "args %v", args)
	}
}

func TestUnknownSubcommandFails(t *testing.T) {
	_, _, err := parseOnly(t, "nonexistent")
	require.Error(t, err)
}

func TestHelpFlagDoesNotError(t *testing.T) {
	captureOutput(t, func() {
		assert.NoError(t, RunWithArgs("test", []string{"--help"}))
	})
}

func TestGlobalFlags(t *testing.T) {
	globals, _, err := parseOnly(t, "--json", "--verbose", "--config", "/tmp/test.yaml", "--db-path", "/tmp/t.db", "status")
	require.NoError(t, err)
	assert.True(t, globals.JSON)
	assert.True(t, globals.Verbose)
	assert.Equal(t, "/tmp/test.yaml", globals.Config)
	assert.Equal(t, "/tmp/t.db", globals.DBPath)
}

func TestHistoryFlagsDefaults(t *testing.T) {
	_, c, err := parseOnly(t, "history")
	require.NoError(t, err)
	assert.Equal(t, "30d", c.History.Since)
	assert.Equal(t, 31, c.History.Limit)
	assert.Equal(t, 0, c.History.Offset)
}

func TestShowFormatFlag(t *testing.T) {
	_, c, err := parseOnly(t, "show", "--format", "hours")
	require.NoError(t, err)
	assert.Equal(t, "hours", c.Show.Format)
	assert.Empty(t, c.Show.Day)
}

func TestExportFlags(t *testing.T) {
	_, c, err := parseOnly(t, "export")
	require.NoError(t, err)
	assert.Equal(t, "tabtally.csv", c.Export.Output)
	assert.False(t, c.Export.Open)

	_, c, err = parseOnly(t, "export", "--output", "days.csv", "--open")
	require.NoError(t, err)
	assert.Equal(t, "days.csv", c.Export.Output)
	assert.True(t, c.Export.Open)
}

func TestIngestFlags(t *testing.T) {
	_, c, err := parseOnly(t, "ingest", "--port", "9999", "--cdp-url", "http://127.0.0.1:9222", "--reason", "startup")
	require.NoError(t, err)
	assert.Equal(t, 9999, c.Ingest.Port)
	assert.Equal(t, "http://127.0.0.1:9222", c.Ingest.CDPURL)
	assert.Equal(t, "startup", c.Ingest.Reason)

	_, c, err = parseOnly(t, "ingest")
	require.NoError(t, err)
	assert.Equal(t, "auto", c.Ingest.Reason)
}

func TestIngestRejectsUnknownReason(t *testing.T) {
	_, _, err := parseOnly(t, "ingest", "--reason", "update")
	require.Error(t, err)
}

func TestPurgeForceFlag(t *testing.T) {
	_, c, err := parseOnly(t, "purge", "--all", "--force")
	require.NoError(t, err)
	assert.True(t, c.Purge.All)
	assert.True(t, c.Purge.Force)
}

func TestPurgeRequiresAll(t *testing.T) {
	err := RunWithArgs("test", []string{"purge"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--all flag for safety")
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in    string
		hours int
		ok    bool
	}{
		{"30d", 720, true},
		{"2w", 336, true},
		{"12h", 12, true},
		{"0d", 0, true},
		{"", 0, false},
		{"d", 0, false},
		{"5x", 0, false},
		{"-1d", 0, false},
	}
	for _, tt := range tests {
		d, err := parseDuration(tt.in)
		if !tt.ok {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, float64(tt.hours), d.Hours(), tt.in)
	}
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "0", formatNumber(0))
	assert.Equal(t, "999", formatNumber(999))
	assert.Equal(t, "1,000", formatNumber(1000))
	assert.Equal(t, "123,456", formatNumber(123456))
	assert.Equal(t, "1,234,567", formatNumber(1234567))
	assert.Equal(t, "-12,345", formatNumber(-12345))
}
