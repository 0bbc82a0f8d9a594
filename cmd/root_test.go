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

	for _, name := range []string{"serve", "resolve", "library", "audit"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "devmap", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.NotNil(t, rootCmd.PersistentPreRunE)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestResolveCommand_Flags(t *testing.T) {
	flag := resolveCmd.Flags().Lookup("explain")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
	assert.Error(t, resolveCmd.Args(resolveCmd, nil), "resolve requires at least one name")
}

func TestLibraryCommand_Flags(t *testing.T) {
	flag := libraryCmd.Flags().Lookup("output")
	require.NotNil(t, flag)
	assert.Equal(t, "table", flag.DefValue)
	assert.Equal(t, "o", flag.Shorthand)
	assert.Error(t, libraryCmd.Args(libraryCmd, []string{"a", "b"}))
}
