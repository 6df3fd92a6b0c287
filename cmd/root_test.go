package cmd

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandStructure(t *testing.T) {
	names := make(map[string]bool)
	for _, sub := range rootCmd.Commands() {
		names[sub.Name()] = true
	}
	assert.True(t, names["explore"], "explore subcommand must be registered")
	assert.True(t, names["kb"], "kb subcommand must be registered")
	assert.Equal(t, "wander", rootCmd.Use)
}

func TestExploreCommandFlags(t *testing.T) {
	cmd := newExploreCmd()

	for _, name := range []string{"steps", "headless", "knowledge"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "flag %q must exist", name)
	}

	// explore requires exactly one target.
	require.Error(t, cmd.Args(cmd, nil))
	require.Error(t, cmd.Args(cmd, []string{"a", "b"}))
	require.NoError(t, cmd.Args(cmd, []string{"https://example.test"}))
}

func TestKBCommandStructure(t *testing.T) {
	cmd := newKBCmd()
	subs := cmd.Commands()
	require.Len(t, subs, 1)
	assert.Equal(t, "init", subs[0].Name())
}

func TestInitializeViperEnvOverride(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("WANDER_AGENT_STEP_BUDGET", "42")
	require.NoError(t, initializeViper())

	assert.Equal(t, 42, viper.GetInt("agent.step_budget"))
}
