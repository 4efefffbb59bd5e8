package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minhahamin/mes-fe-sub000/internal/config"
)

func TestStartupErrorIsNotPrintedByCobra(t *testing.T) {
	t.Chdir(t.TempDir())

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"--env", "staging"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
	assert.Empty(t, out.String())
}

func TestServerFlagsAreKnownKeys(t *testing.T) {
	for name, key := range serverFlags {
		assert.NotNil(t, rootCmd.Flags().Lookup(name), name)
		assert.NotEmpty(t, key)
	}
	assert.Equal(t, config.KeyServerAddr, serverFlags["addr"])
}
