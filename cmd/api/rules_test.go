package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"instafund/internal/settings"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRulesCmd_PrintsDefaults(t *testing.T) {
	t.Setenv("RULES_FILE", "")
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--env-file", filepath.Join(t.TempDir(), "none.env"), "rules"})
	require.NoError(t, cmd.Execute())

	c, err := settings.ParseCatalog(out.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "50000", c.Eval1.AccountSize.String())
}

func TestRulesCmd_RejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("eval1:\n  account_size: -5\n"), 0o600))

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--env-file", filepath.Join(t.TempDir(), "none.env"), "rules", "--file", path})
	assert.Error(t, cmd.Execute())
}
