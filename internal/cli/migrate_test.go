package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cfgmigrate/internal/executor"
	"github.com/roach88/cfgmigrate/internal/model"
	"github.com/roach88/cfgmigrate/internal/platform"
	"github.com/roach88/cfgmigrate/internal/platform/memory"
	"github.com/roach88/cfgmigrate/internal/testutil"
)

const (
	sourceURL = "https://source.test"
	destURL   = "https://dest.test"
)

// testEnv wires the CLI to in-memory instances.
type testEnv struct {
	src    *memory.Store
	dest   *memory.Store
	env    map[string]string
	opts   *RootOptions
	out    *bytes.Buffer
	errOut *bytes.Buffer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	src := memory.New()
	require.NoError(t, src.Seed(
		model.NewObject(model.KindAction, "a1", "Notify SOC", map[string]any{"type": "webhook", "active": true}),
		model.NewObject(model.KindList, "l1", "vips", map[string]any{"entry_type": "string", "entries": []string{"ceo@example.com"}}),
		model.NewObject(model.KindRule, "r1", "VIP impersonation", map[string]any{
			"type":       "detection",
			"source":     "sender.email.email in $vips",
			"action_ids": []string{"a1"},
		}),
	))

	e := &testEnv{
		src:  src,
		dest: memory.New(memory.WithIDs(testutil.NewSequence("d"))),
		env: map[string]string{
			EnvSourceAPIKey: "src-key",
			EnvDestAPIKey:   "dest-key",
		},
		out:    &bytes.Buffer{},
		errOut: &bytes.Buffer{},
	}
	e.opts = &RootOptions{
		Getenv: func(k string) string { return e.env[k] },
		NewClient: func(ep Endpoint, _ *slog.Logger) (platform.Client, error) {
			switch ep.URL {
			case sourceURL:
				return e.src, nil
			case destURL:
				return e.dest, nil
			}
			return nil, fmt.Errorf("unexpected endpoint %q", ep.Label())
		},
		In: strings.NewReader(""),
	}
	return e
}

func (e *testEnv) run(args ...string) error {
	cmd := newRootCommand(e.opts)
	cmd.SetOut(e.out)
	cmd.SetErr(e.errOut)
	cmd.SetArgs(args)
	return cmd.Execute()
}

func (e *testEnv) migrate(args ...string) error {
	base := []string{"migrate", "--source-url", sourceURL, "--dest-url", destURL, "--no-color"}
	return e.run(append(base, args...)...)
}

type migrateResponse struct {
	Status string `json:"status"`
	Data   struct {
		RunID   string           `json:"run_id"`
		DryRun  bool             `json:"dry_run"`
		Applied bool             `json:"applied"`
		Report  executor.Report  `json:"report"`
		Summary executor.Summary `json:"summary"`
	} `json:"data"`
	Error *CLIError `json:"error"`
}

func decodeMigrate(t *testing.T, data []byte) migrateResponse {
	t.Helper()
	var resp migrateResponse
	require.NoError(t, json.Unmarshal(data, &resp), string(data))
	return resp
}

// TestMigrate_DryRunWritesNothing verifies a dry run renders the plan and
// report and makes no destination writes.
func TestMigrate_DryRunWritesNothing(t *testing.T) {
	e := newTestEnv(t)

	err := e.migrate("all", "--dry-run")
	require.NoError(t, err)
	assert.Empty(t, e.dest.Writes())

	out := e.out.String()
	assert.Contains(t, out, "Plan (")
	assert.Contains(t, out, "Report (dry run, nothing written)")
	assert.Contains(t, out, "(placeholder)")
	assert.NotContains(t, out, "[y/N]")
}

// TestMigrate_ConfirmationDeclined verifies answering no aborts before any
// write.
func TestMigrate_ConfirmationDeclined(t *testing.T) {
	e := newTestEnv(t)
	e.opts.In = strings.NewReader("n\n")

	err := e.migrate("all")
	require.NoError(t, err)
	assert.Empty(t, e.dest.Writes())
	assert.Contains(t, e.out.String(), "[y/N]")
	assert.Contains(t, e.out.String(), "Aborted")
}

// TestMigrate_ConfirmationEOFDeclines verifies closed input counts as no.
func TestMigrate_ConfirmationEOFDeclines(t *testing.T) {
	e := newTestEnv(t)

	err := e.migrate("all")
	require.NoError(t, err)
	assert.Empty(t, e.dest.Writes())
}

// TestMigrate_ConfirmationAccepted verifies answering yes applies the plan.
func TestMigrate_ConfirmationAccepted(t *testing.T) {
	e := newTestEnv(t)
	e.opts.In = strings.NewReader("yes\n")

	err := e.migrate("all")
	require.NoError(t, err)
	assert.NotEmpty(t, e.dest.Writes())
	require.Len(t, e.dest.Objects(model.KindRule), 1)
	assert.Contains(t, e.out.String(), "CREATED")
}

// TestMigrate_JSONNeedsYes verifies a live JSON run is refused without
// --yes and the refusal is written as a JSON error.
func TestMigrate_JSONNeedsYes(t *testing.T) {
	e := newTestEnv(t)

	err := e.migrate("all", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.True(t, Reported(err))
	assert.Empty(t, e.dest.Calls())

	resp := decodeMigrate(t, e.out.Bytes())
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeUsage, resp.Error.Code)
}

// TestMigrate_JSONReport verifies the JSON payload carries the report.
func TestMigrate_JSONReport(t *testing.T) {
	e := newTestEnv(t)

	err := e.migrate("rule", "--format", "json", "--yes")
	require.NoError(t, err)

	resp := decodeMigrate(t, e.out.Bytes())
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Applied)
	assert.NotEmpty(t, resp.Data.RunID)
	assert.Equal(t, resp.Data.RunID, resp.Data.Report.RunID)
	assert.Equal(t, 3, resp.Data.Summary[executor.StatusCreated], "rule plus its action and list")

	rule, ok := resp.Data.Report.Outcome(model.Key{Kind: model.KindRule, ID: "r1"})
	require.True(t, ok)
	assert.Equal(t, executor.StatusCreated, rule.Status)
}

// TestMigrate_FailedStepExitsOne verifies a failed write makes the command
// exit 1 after rendering the report.
func TestMigrate_FailedStepExitsOne(t *testing.T) {
	e := newTestEnv(t)
	e.dest.InjectFault(memory.Fault{
		Op:   "create",
		Kind: model.KindRule,
		Err:  &platform.Error{Code: platform.ErrCodeValidation, Op: "create", Kind: model.KindRule, Message: "source does not compile"},
	})

	err := e.migrate("all", "--yes")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.False(t, Reported(err))
	assert.Contains(t, err.Error(), "1 failed")
	assert.Contains(t, e.out.String(), "FAILED 1")
}

// TestMigrate_FailedStepJSON verifies the JSON response of an unclean run
// has error status and still carries the report.
func TestMigrate_FailedStepJSON(t *testing.T) {
	e := newTestEnv(t)
	e.dest.InjectFault(memory.Fault{
		Op:   "create",
		Kind: model.KindAction,
		Err:  &platform.Error{Code: platform.ErrCodeValidation, Op: "create", Kind: model.KindAction, Message: "bad webhook"},
	})

	err := e.migrate("all", "--yes", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, Reported(err))

	resp := decodeMigrate(t, e.out.Bytes())
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeRunFailed, resp.Error.Code)
	assert.Equal(t, 1, resp.Data.Summary[executor.StatusFailed])
	assert.Positive(t, resp.Data.Summary[executor.StatusFailedBlocked])
}

// TestMigrate_CommandErrors verifies usage, credential and snapshot
// problems exit 2 without writing.
func TestMigrate_CommandErrors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(e *testEnv)
		args    []string
		wantErr string
	}{
		{
			name:    "unknown kind",
			args:    []string{"widgets", "--dry-run"},
			wantErr: "unknown kind",
		},
		{
			name:    "unknown skip kind",
			args:    []string{"all", "--skip", "widgets", "--dry-run"},
			wantErr: "--skip",
		},
		{
			name:    "zero workers",
			args:    []string{"all", "--workers", "0", "--dry-run"},
			wantErr: "--workers",
		},
		{
			name:    "bad flag value",
			args:    []string{"all", "--workers", "many"},
			wantErr: "invalid flags",
		},
		{
			name:    "missing argument",
			args:    []string{},
			wantErr: "accepts 1 arg",
		},
		{
			name:    "missing api key",
			setup:   func(e *testEnv) { delete(e.env, EnvSourceAPIKey) },
			args:    []string{"all", "--dry-run"},
			wantErr: "source API key not set",
		},
		{
			name: "snapshot failure",
			setup: func(e *testEnv) {
				e.src.InjectFault(memory.Fault{Op: "list", Kind: model.KindAction, Err: errors.New("connection reset")})
			},
			args:    []string{"all", "--dry-run"},
			wantErr: "connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t)
			if tt.setup != nil {
				tt.setup(e)
			}
			err := e.migrate(tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Empty(t, e.dest.Writes())
		})
	}
}

// TestMigrate_JournalAndHistory verifies a journaled run is listed by the
// history command with its outcomes.
func TestMigrate_JournalAndHistory(t *testing.T) {
	e := newTestEnv(t)
	path := filepath.Join(t.TempDir(), "runs.db")

	require.NoError(t, e.migrate("all", "--yes", "--journal", path, "--format", "json"))
	runID := decodeMigrate(t, e.out.Bytes()).Data.RunID
	require.NotEmpty(t, runID)

	e.out.Reset()
	require.NoError(t, e.run("history", "--journal", path, "--format", "json"))
	var list struct {
		Status string    `json:"status"`
		Data   []runView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(e.out.Bytes(), &list))
	require.Len(t, list.Data, 1)
	assert.Equal(t, runID, list.Data[0].RunID)
	assert.Equal(t, "finished", list.Data[0].State)
	assert.Equal(t, sourceURL, list.Data[0].Source)
	assert.Equal(t, destURL, list.Data[0].Destination)

	e.out.Reset()
	require.NoError(t, e.run("history", runID, "--journal", path))
	assert.Contains(t, e.out.String(), "Run "+runID)
	assert.Contains(t, e.out.String(), "VIP impersonation")
}

// TestApplyDefaults_FlagsWin verifies config defaults fill only flags the
// user did not set.
func TestApplyDefaults_FlagsWin(t *testing.T) {
	opts := &RootOptions{}
	cmd := NewMigrateCommand(opts)
	require.NoError(t, cmd.ParseFlags([]string{"--workers", "2"}))

	mo := &MigrateOptions{RootOptions: opts, Workers: 2, RetryAttempts: 3}
	mo.applyDefaults(cmd, Defaults{
		Workers:        8,
		RetryAttempts:  5,
		UpdateExisting: true,
		Journal:        "runs.db",
		Skip:           []string{"feeds"},
	})

	assert.Equal(t, 2, mo.Workers)
	assert.Equal(t, 5, mo.RetryAttempts)
	assert.True(t, mo.UpdateExisting)
	assert.Equal(t, "runs.db", mo.Journal)
	assert.Equal(t, []string{"feeds"}, mo.Skip)
}
