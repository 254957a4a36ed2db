package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

func TestNew_CommandTree(t *testing.T) {
	root := New()

	require.NotNil(t, root)
	assert.Equal(t, "hibpguard", root.Name)

	names := make([]string, 0, len(root.Commands))
	for _, c := range root.Commands {
		names = append(names, c.Name)
	}

	assert.ElementsMatch(t, []string{"build", "watch", "check"}, names)
}

func TestNew_LogLevelFlagRejectsBadLevel(t *testing.T) {
	root := New()

	var logLevelFlag *cli.StringFlag

	for _, f := range root.Flags {
		if sf, ok := f.(*cli.StringFlag); ok && sf.Name == "log-level" {
			logLevelFlag = sf
		}
	}

	require.NotNil(t, logLevelFlag)
	require.NotNil(t, logLevelFlag.Validator)
	assert.Error(t, logLevelFlag.Validator("not-a-level"))
	assert.NoError(t, logLevelFlag.Validator("debug"))
}
