package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/cfgmigrate/internal/executor"
	"github.com/roach88/cfgmigrate/internal/model"
)

// snapshot is the stable part of a report: everything except timestamps
// and destination IDs generated during the run.
func snapshot(name string, report *executor.Report) map[string]any {
	outcomes := make([]any, len(report.Outcomes))
	for i, o := range report.Outcomes {
		m := map[string]any{
			"key":    o.Key.String(),
			"action": string(o.Action),
			"status": string(o.Status),
		}
		if o.Reason != "" {
			m["reason"] = o.Reason
		}
		if o.Attempts > 0 {
			m["attempts"] = o.Attempts
		}
		if o.DestinationID != "" && (o.Placeholder || o.Status != executor.StatusCreated) {
			m["destination_id"] = o.DestinationID
		}
		if o.Placeholder {
			m["placeholder"] = true
		}
		outcomes[i] = m
	}

	summary := map[string]any{}
	for status, n := range report.Summary() {
		summary[string(status)] = n
	}
	return map[string]any{
		"scenario": name,
		"run_id":   report.RunID,
		"dry_run":  report.DryRun,
		"outcomes": outcomes,
		"summary":  summary,
	}
}

// Snapshot renders the stable part of a report as canonical JSON, the
// content of a golden file.
func Snapshot(name string, report *executor.Report) ([]byte, error) {
	return model.MarshalCanonical(snapshot(name, report))
}

// RunWithGolden runs a scenario, fails the test on any scenario error, and
// compares the report against testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, s *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(s)
	if err != nil {
		return nil, err
	}
	for _, e := range result.Errors {
		t.Error(e)
	}
	if err := AssertGolden(t, s.Name, result.Report); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares a report against its golden file without running
// anything.
func AssertGolden(t *testing.T, name string, report *executor.Report) error {
	t.Helper()

	data, err := Snapshot(name, report)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
