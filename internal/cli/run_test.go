package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyforge/reconcile/internal/record"
	"github.com/tallyforge/reconcile/internal/scope"
	"github.com/tallyforge/reconcile/internal/store"
)

// seedDatabase creates a database with one ledger entry and one bank
// record referencing it by external id.
func seedDatabase(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "books.db")

	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	amount, err := decimal.NewFromString("20.00")
	require.NoError(t, err)
	day := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)

	err = st.InsertRecords(context.Background(), []*record.Record{
		{ID: "L-1", Source: record.SourceLedger, Name: "Acme Widgets", Amount: amount, Date: day},
		{ID: "B-1", Source: "bank", ExternalID: "L-1", Amount: amount.Neg(), Date: day},
	})
	require.NoError(t, err)
	return path
}

func TestRunDryRunOutput(t *testing.T) {
	dbPath := seedDatabase(t)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewRunCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath})

	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "Dry run: no matches persisted.")
	assert.Contains(t, output, "external_id")
	assert.Contains(t, output, "Coverage: 100.0%")
}

func TestRunApplyPersists(t *testing.T) {
	dbPath := seedDatabase(t)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewRunCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath, "--apply"})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Writes: 1 attempted, 1 ok, 0 failed")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	recs, err := st.Fetch(context.Background(), "bank", scope.Scope{Mode: scope.ModeDryRun})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.NotNil(t, recs[0].Match)
	assert.Equal(t, "L-1", recs[0].Match.TargetID)
	assert.Equal(t, "external_id", recs[0].Match.Method)
}

func TestRunJSONOutput(t *testing.T) {
	dbPath := seedDatabase(t)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewRunCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath})

	err := cmd.Execute()
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	var data struct {
		Token      string         `json:"token"`
		Mode       string         `json:"mode"`
		Strategies map[string]int `json:"strategies"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.NotEmpty(t, data.Token)
	assert.Equal(t, "dry-run", data.Mode)
	assert.Equal(t, 1, data.Strategies["external_id"])
}

func TestRunBadDateFlag(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewRunCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", "ignored.db", "--from", "03/01/2026"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunScopeOrderRejected(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewRunCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", "ignored.db", "--from", "2026-03-31", "--to", "2026-03-01"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestReportShowsLastRun(t *testing.T) {
	dbPath := seedDatabase(t)

	rootOpts := &RootOptions{Format: "text"}
	runCmd := NewRunCommand(rootOpts)
	runCmd.SetOut(&bytes.Buffer{})
	runCmd.SetArgs([]string{"--db", dbPath, "--apply"})
	require.NoError(t, runCmd.Execute())

	buf := &bytes.Buffer{}
	reportCmd := NewReportCommand(rootOpts)
	reportCmd.SetOut(buf)
	reportCmd.SetArgs([]string{"--db", dbPath})

	require.NoError(t, reportCmd.Execute())
	output := buf.String()
	assert.Contains(t, output, "mode:    apply")
	assert.Contains(t, output, "matched: 1")
	assert.Contains(t, output, "writes:  1 ok, 0 failed")
}

func TestReportNoRuns(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "empty.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewReportCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath})

	err = cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no runs recorded")
}
