package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kappaborg/HIJACK-Audio/internal/conf"
)

func TestRootCommandSubcommands(t *testing.T) {
	root := RootCommand(conf.Defaults())

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"devices", "route", "serve", "version"})

	for _, flag := range []string{"config", "debug", "backend"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}
}

func TestVersionSkipsConfiguration(t *testing.T) {
	root := RootCommand(conf.Defaults())
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), conf.AppName)
}

func TestRouteNeedsSourceAndSink(t *testing.T) {
	root := RootCommand(conf.Defaults())
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"route", "Null Microphone"})

	assert.Error(t, root.Execute())
}
