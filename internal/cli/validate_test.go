package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAllValid(t *testing.T) {
	dir := t.TempDir()
	a := writeScenario(t, dir, "a.yaml", cleanScenario)
	b := writeScenario(t, dir, "b.yaml", failingScenario)

	out := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(out)
	cmd.SetArgs([]string{a, b})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "✓ "+a+" (Nodes, 3 steps)")
	assert.Contains(t, out.String(), "✓ "+b+" (Ways, 3 steps)")
}

func TestValidateReportsIssues(t *testing.T) {
	dir := t.TempDir()
	good := writeScenario(t, dir, "good.yaml", cleanScenario)
	bad := writeScenario(t, dir, "bad.yaml", `
name: Bad
batches: -3
steps:
  - {name: read, kind: producer}
  - {name: write, kind: sink}
`)

	out := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(out)
	cmd.SetArgs([]string{good, bad})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "1 of 2 scenarios invalid")
	assert.Contains(t, out.String(), "✓ "+good)
	assert.Contains(t, out.String(), "✗ "+bad+" [E201]:")
	assert.Contains(t, out.String(), "    batches: ")
}

func TestValidateJSON(t *testing.T) {
	dir := t.TempDir()
	chain := writeScenario(t, dir, "chain.yaml", `
name: Chain
batches: 1
steps:
  - {name: read, kind: producer}
  - {name: parse, kind: processor}
`)

	out := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "json"})
	cmd.SetOut(out)
	cmd.SetArgs([]string{chain})
	require.Error(t, cmd.Execute())

	var resp struct {
		Status string `json:"status"`
		Error  struct {
			Code    string             `json:"code"`
			Details []ValidationResult `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.Len(t, resp.Error.Details, 1)
	assert.False(t, resp.Error.Details[0].Valid)
	assert.Equal(t, ErrCodeChain, resp.Error.Details[0].Code)
	assert.Contains(t, resp.Error.Details[0].Error, "want sink")
}

func TestValidateRequiresArgs(t *testing.T) {
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})

	assert.Error(t, cmd.Execute())
}
