// Package harness runs migration scenarios against in-memory instances.
//
// A scenario is a YAML file describing the source and destination contents,
// the run options, injected platform faults, and the expected outcome of
// each object. Run seeds two memory stores, performs the migration through
// the same Migrator the CLI uses, and checks the expectations together with
// invariants every run must satisfy:
//
//   - the report has one outcome per plan step, in plan order
//   - nothing is written before its dependencies reached a terminal state
//   - FAILED-BLOCKED only follows a failed dependency
//   - dry runs make no writes
//
// Reports are compared against golden files with RunWithGolden. Generated
// destination IDs and timestamps are left out of the snapshot so goldens
// are stable across runs.
//
// Regenerate golden files with:
//
//	go test ./internal/harness -update
package harness
