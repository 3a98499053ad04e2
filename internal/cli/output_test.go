package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestErrorCodes verifies every JSON error code is distinct and well formed.
func TestErrorCodes(t *testing.T) {
	codes := []string{
		CodeGeneric, CodeUsage, CodeConfig, CodeCredentials,
		CodeSnapshot, CodeCycle, CodeNotFound, CodeRunFailed, CodeInterrupted,
		CodeJournal, CodeRunNotFound, CodeTestsFailed, CodeNotConfirmed,
	}
	pattern := regexp.MustCompile(`^E\d{3}$`)
	seen := map[string]bool{}
	for _, c := range codes {
		assert.Regexp(t, pattern, c)
		assert.False(t, seen[c], "duplicate code %s", c)
		seen[c] = true
	}
}

// TestExitError verifies the message, unwrapping and exit code of wrapped
// and bare exit errors.
func TestExitError(t *testing.T) {
	bare := NewExitError(ExitCommandError, "unknown kind")
	assert.Equal(t, "unknown kind", bare.Error())
	assert.Nil(t, bare.Unwrap())

	wrapped := WrapExitError(ExitFailure, "open journal", assert.AnError)
	assert.Equal(t, "open journal: "+assert.AnError.Error(), wrapped.Error())
	assert.ErrorIs(t, wrapped, assert.AnError)

	outer := fmt.Errorf("migrate: %w", bare)
	assert.Equal(t, ExitCommandError, GetExitCode(outer))
}

// TestReported verifies only errors written as a JSON response are
// reported, including through wrapping.
func TestReported(t *testing.T) {
	jsonOut := &OutputFormatter{Format: "json", Writer: &bytes.Buffer{}}
	reported := jsonOut.Fail(ExitFailure, CodeJournal, "journal unavailable", nil)

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", assert.AnError, false},
		{"unreported exit error", NewExitError(ExitFailure, "x"), false},
		{"reported", reported, true},
		{"reported and wrapped", fmt.Errorf("history: %w", reported), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Reported(tt.err))
		})
	}
}

// TestOutputFormatter_Success verifies the ok envelope in JSON and the
// plain line in table mode.
func TestOutputFormatter_Success(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, (&OutputFormatter{Format: "json", Writer: buf}).Success(map[string]int{"runs": 2}))

	var resp struct {
		Status string         `json:"status"`
		Data   map[string]int `json:"data"`
		Error  *CLIError      `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]int{"runs": 2}, resp.Data)
	assert.Nil(t, resp.Error)
	assert.NotContains(t, buf.String(), `"error"`)

	buf.Reset()
	require.NoError(t, (&OutputFormatter{Format: "table", Writer: buf}).Success("No runs recorded."))
	assert.Equal(t, "No runs recorded.\n", buf.String())
}

// TestOutputFormatter_ErrorTable verifies details are printed only when
// verbose.
func TestOutputFormatter_ErrorTable(t *testing.T) {
	for _, verbose := range []bool{false, true} {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "table", Writer: buf, Verbose: verbose}
		require.NoError(t, f.Error(CodeRunNotFound, "run not found", "run-9"))

		assert.Contains(t, buf.String(), "Error [E031]: run not found")
		if verbose {
			assert.Contains(t, buf.String(), "Details: run-9")
		} else {
			assert.NotContains(t, buf.String(), "Details")
		}
	}
}

// TestOutputFormatter_FailWithoutCause verifies a JSON failure with no
// underlying error carries no details.
func TestOutputFormatter_FailWithoutCause(t *testing.T) {
	buf := &bytes.Buffer{}
	err := (&OutputFormatter{Format: "json", Writer: buf}).Fail(ExitCommandError, CodeUsage, "--yes is required with --format json", nil)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeUsage, resp.Error.Code)
	assert.Nil(t, resp.Error.Details)
	assert.Nil(t, resp.Data)
}

// TestOutputFormatter_PartialTable verifies table mode leaves the report
// to the renderer and lets main print the message.
func TestOutputFormatter_PartialTable(t *testing.T) {
	buf := &bytes.Buffer{}
	err := (&OutputFormatter{Format: "table", Writer: buf}).Partial(ExitFailure, CodeInterrupted, "run interrupted", nil)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.False(t, Reported(err))
	assert.Empty(t, buf.String())
}

// TestOutputFormatter_VerboseLogKeepsJSONClean verifies diagnostics go to
// ErrWriter so stdout stays parseable.
func TestOutputFormatter_VerboseLogKeepsJSONClean(t *testing.T) {
	out, diag := &bytes.Buffer{}, &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: out, ErrWriter: diag, Verbose: true}

	f.VerboseLog("journal %s", "runs.db")
	require.NoError(t, f.Success(nil))

	assert.Equal(t, "journal runs.db\n", diag.String())
	assert.True(t, json.Valid(out.Bytes()))

	quiet := &OutputFormatter{Format: "table", Writer: out}
	out.Reset()
	quiet.VerboseLog("hidden")
	assert.Empty(t, out.String())
}

func TestOutputFormatter_FailJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := formatter.Fail(ExitCommandError, CodeSnapshot, "snapshot failed", assert.AnError)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.True(t, Reported(err))
	assert.ErrorIs(t, err, assert.AnError)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, CodeSnapshot, resp.Error.Code)
	assert.Equal(t, assert.AnError.Error(), resp.Error.Details)
}

func TestOutputFormatter_FailTable(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "table", Writer: buf}

	err := formatter.Fail(ExitCommandError, CodeSnapshot, "snapshot failed", assert.AnError)
	require.Error(t, err)
	assert.False(t, Reported(err), "main prints table-mode errors")
	assert.Empty(t, buf.String())
}

func TestOutputFormatter_Partial(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := formatter.Partial(ExitFailure, CodeRunFailed, "1 failed", map[string]int{"FAILED": 1})
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Equal(t, CodeRunFailed, resp.Error.Code)
}
