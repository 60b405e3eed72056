package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// testApp returns the CLI with its output captured.
func testApp() (*cli.App, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &errOut
	app.ExitErrHandler = func(*cli.Context, error) {}
	return app, &out, &errOut
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewApp_Commands(t *testing.T) {
	app := newApp()

	names := make([]string, 0, len(app.Commands))
	for _, c := range app.Commands {
		names = append(names, c.Name)
	}
	assert.ElementsMatch(t, []string{"decode", "families", "nats", "sse", "db", "ingest", "server"}, names)

	server := app.Command("server")
	require.NotNil(t, server)
	var sub []string
	for _, c := range server.Subcommands {
		sub = append(sub, c.Name)
	}
	assert.Equal(t, []string{"health", "progress", "version"}, sub)

	dbCmd := app.Command("db")
	require.NotNil(t, dbCmd)
	sub = nil
	for _, c := range dbCmd.Subcommands {
		sub = append(sub, c.Name)
	}
	assert.Equal(t, []string{"events", "counts", "prune", "migrate"}, sub)
}
