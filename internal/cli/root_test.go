package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_RegistersSubcommands(t *testing.T) {
	root := NewRootCmd()
	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["run"])
	assert.True(t, names["report"])
	assert.True(t, names["version"])
}

func TestVersionCmd(t *testing.T) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "ndrbatch v")
	assert.Contains(t, out.String(), modulePath)
}

func TestRunCmd_InvalidConfigFails(t *testing.T) {
	t.Setenv("NDRBATCH_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	root := NewRootCmd()
	root.SetOut(new(bytes.Buffer))
	root.SetErr(new(bytes.Buffer))
	// No scenarios configured anywhere, so validation must reject the run.
	root.SetArgs([]string{"run", "--workspace", t.TempDir()})
	assert.Error(t, root.Execute())
}
