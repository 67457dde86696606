package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stagerun/internal/store"
)

// seedRuns writes two runs to a fresh database and returns its path.
func seedRuns(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	runs := []store.RunRecord{
		{
			ID:         "run-1",
			Stage:      "Nodes",
			Part:       "-1",
			Guarantees: "recycle_batches",
			Status:     store.StatusOK,
			OrderKey:   "done_batches",
			StartedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			Elapsed:    1200 * time.Millisecond,
			Steps: []store.StepRecord{
				{Position: 0, Name: "read", Completed: true, Stats: map[string]int64{"done_batches": 40, "total_processing_time": 5}},
				{Position: 1, Name: "write", Completed: true, Stats: map[string]int64{"done_batches": 20, "total_processing_time": 30}},
			},
		},
		{
			ID:         "run-2",
			Stage:      "Ways",
			Guarantees: "none",
			Status:     store.StatusFailed,
			Fault:      "disk full",
			StartedAt:  time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
			Elapsed:    300 * time.Millisecond,
			Steps: []store.StepRecord{
				{Position: 0, Name: "read", Stats: map[string]int64{}},
			},
		},
	}
	for _, run := range runs {
		require.NoError(t, st.WriteRun(t.Context(), run))
	}
	return dbPath
}

func TestHistoryListsNewestFirst(t *testing.T) {
	dbPath := seedRuns(t)

	out := &bytes.Buffer{}
	cmd := NewHistoryCommand(&RootOptions{Format: "text"})
	cmd.SetOut(out)
	cmd.SetArgs([]string{"--db", dbPath})
	require.NoError(t, cmd.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.True(t, strings.HasPrefix(lines[1], "run-2"))
	assert.Contains(t, lines[1], "failed")
	assert.True(t, strings.HasPrefix(lines[2], "run-1"))
	assert.Contains(t, lines[2], "Nodes-1")
	assert.Contains(t, lines[2], "2026-03-01T12:00:00Z")
	assert.Contains(t, lines[2], "1.2s")
}

func TestHistoryLimitJSON(t *testing.T) {
	dbPath := seedRuns(t)

	out := &bytes.Buffer{}
	cmd := NewHistoryCommand(&RootOptions{Format: "json"})
	cmd.SetOut(out)
	cmd.SetArgs([]string{"--db", dbPath, "--limit", "1"})
	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string             `json:"status"`
		Data   []store.RunSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "run-2", resp.Data[0].ID)
}

func TestHistoryEmptyDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out := &bytes.Buffer{}
	cmd := NewHistoryCommand(&RootOptions{Format: "text"})
	cmd.SetOut(out)
	cmd.SetArgs([]string{"--db", dbPath})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "No runs recorded\n", out.String())
}

func TestHistoryErrors(t *testing.T) {
	t.Run("missing db flag", func(t *testing.T) {
		cmd := NewHistoryCommand(&RootOptions{Format: "text"})
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{})

		err := cmd.Execute()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "required flag")
	})

	t.Run("database not found", func(t *testing.T) {
		cmd := NewHistoryCommand(&RootOptions{Format: "text"})
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetArgs([]string{"--db", filepath.Join(t.TempDir(), "none.db")})

		err := cmd.Execute()
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, err.Error(), ErrCodeNotFound)
	})

	t.Run("negative limit", func(t *testing.T) {
		cmd := NewHistoryCommand(&RootOptions{Format: "text"})
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetArgs([]string{"--db", "x.db", "--limit", "-1"})

		err := cmd.Execute()
		require.Error(t, err)
		assert.Contains(t, err.Error(), ErrCodeInvalidFlag)
	})
}

func TestShowUsesRecordedOrderKey(t *testing.T) {
	dbPath := seedRuns(t)

	out := &bytes.Buffer{}
	cmd := NewShowCommand(&RootOptions{Format: "text"})
	cmd.SetOut(out)
	cmd.SetArgs([]string{"--db", dbPath, "run-1"})
	require.NoError(t, cmd.Execute())

	text := out.String()
	assert.Contains(t, text, "Run         run-1")
	assert.Contains(t, text, "Started     2026-03-01T12:00:00Z")
	assert.Contains(t, text, "Ordered by  done_batches (descending)")
	assert.Less(t, strings.Index(text, "read"), strings.Index(text, "write"))
}

func TestShowOrderByOverride(t *testing.T) {
	dbPath := seedRuns(t)

	out := &bytes.Buffer{}
	cmd := NewShowCommand(&RootOptions{Format: "json"})
	cmd.SetOut(out)
	cmd.SetArgs([]string{"--db", dbPath, "--order-by", "total_processing_time", "run-1"})
	require.NoError(t, cmd.Execute())

	var resp struct {
		Data ShowResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "run-1", resp.Data.Run.ID)
	require.Len(t, resp.Data.Report.Steps, 2)
	assert.Equal(t, "write", resp.Data.Report.Steps[0].Step)
	assert.Equal(t, int64(30), resp.Data.Report.Steps[0].Value)
}

func TestShowFaultedRunDefaultsKey(t *testing.T) {
	dbPath := seedRuns(t)

	out := &bytes.Buffer{}
	cmd := NewShowCommand(&RootOptions{Format: "text"})
	cmd.SetOut(out)
	cmd.SetArgs([]string{"--db", dbPath, "run-2"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "Fault       disk full")
	assert.Contains(t, out.String(), "Ordered by  total_processing_time (descending)")
}

func TestShowErrors(t *testing.T) {
	dbPath := seedRuns(t)

	t.Run("unknown run", func(t *testing.T) {
		cmd := NewShowCommand(&RootOptions{Format: "text"})
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetArgs([]string{"--db", dbPath, "run-9"})

		err := cmd.Execute()
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, err.Error(), ErrCodeNotFound)
	})

	t.Run("unknown key", func(t *testing.T) {
		cmd := NewShowCommand(&RootOptions{Format: "text"})
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetArgs([]string{"--db", dbPath, "--order-by", "bogus", "run-1"})

		err := cmd.Execute()
		require.Error(t, err)
		assert.Contains(t, err.Error(), ErrCodeInvalidFlag)
	})
}

func TestKeysCommand(t *testing.T) {
	out := &bytes.Buffer{}
	cmd := NewKeysCommand(&RootOptions{Format: "text"})
	cmd.SetOut(out)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 7)
	assert.True(t, strings.HasPrefix(lines[0], "received_batches"))
	assert.True(t, strings.HasPrefix(lines[6], "progress"))

	out.Reset()
	cmd = NewKeysCommand(&RootOptions{Format: "json"})
	cmd.SetOut(out)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())

	var resp struct {
		Data []KeyInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	require.Len(t, resp.Data, 7)
	assert.Equal(t, KeyInfo{Name: "done_batches", Short: "out", Description: "Number of batches processed and sent downstream"}, resp.Data[1])
	assert.Equal(t, "progress", resp.Data[6].Short)
}
