package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"run", "bandwidth", "fetch", "serve", "runs"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "gwr-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRunCommand_Flags(t *testing.T) {
	for _, name := range []string{"data", "out", "bw", "kernel", "fixed", "criterion", "xlsx", "summary-yaml", "shp-out"} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), "run should have --%s flag", name)
	}
	assert.Equal(t, "bisquare", runCmd.Flags().Lookup("kernel").DefValue)
	assert.Equal(t, "AICc", runCmd.Flags().Lookup("criterion").DefValue)
	assert.Equal(t, "0", runCmd.Flags().Lookup("bw").DefValue)
}

func TestBandwidthCommand_Flags(t *testing.T) {
	for _, name := range []string{"data", "kernel", "fixed", "criterion"} {
		assert.NotNil(t, bandwidthCmd.Flags().Lookup(name), "bandwidth should have --%s flag", name)
	}
	assert.Nil(t, bandwidthCmd.Flags().Lookup("bw"))
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestFetchCommand_Flags(t *testing.T) {
	require.NotNil(t, fetchCmd.Flags().Lookup("url"))
}

func TestRunsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range runsCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"list", "show", "locations", "stats"} {
		assert.True(t, names[name], "runs should have subcommand %q", name)
	}
}
