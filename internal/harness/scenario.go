package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/cfgmigrate/internal/executor"
	"github.com/roach88/cfgmigrate/internal/model"
	"github.com/roach88/cfgmigrate/internal/platform"
)

// Scenario is one migration test case.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	Source      []ObjectSpec `yaml:"source"`
	Destination []ObjectSpec `yaml:"destination,omitempty"`

	Options OptionSpec  `yaml:"options,omitempty"`
	Faults  []FaultSpec `yaml:"faults,omitempty"`

	// Expect lists outcomes by source key. Objects not listed are not checked.
	Expect []Expectation `yaml:"expect"`

	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// ObjectSpec is an object as it appears in a scenario file. Fields use the
// platform's record shape.
type ObjectSpec struct {
	Kind        string            `yaml:"kind"`
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name,omitempty"`
	Fields      map[string]any    `yaml:"fields,omitempty"`
	Annotations map[string]string `yaml:"annotations,omitempty"`
}

// OptionSpec mirrors the migrate options.
type OptionSpec struct {
	Kinds          []string `yaml:"kinds,omitempty"`
	IncludeIDs     []string `yaml:"include_ids,omitempty"`
	ExcludeIDs     []string `yaml:"exclude_ids,omitempty"`
	SkipKinds      []string `yaml:"skip_kinds,omitempty"`
	UpdateExisting bool     `yaml:"update_existing,omitempty"`
	DryRun         bool     `yaml:"dry_run,omitempty"`
	IncludeSystem  bool     `yaml:"include_system,omitempty"`
	Workers        int      `yaml:"workers,omitempty"`
	RetryAttempts  int      `yaml:"retry_attempts,omitempty"`
}

// FaultSpec makes matching destination calls fail.
type FaultSpec struct {
	Op    string `yaml:"op"`
	Kind  string `yaml:"kind"`
	Name  string `yaml:"name,omitempty"`
	Code  string `yaml:"code"`
	Times int    `yaml:"times,omitempty"`
}

// Expectation is the expected outcome of one source object.
type Expectation struct {
	// Key is "kind/id".
	Key    string `yaml:"key"`
	Status string `yaml:"status"`
	// Reason must be a substring of the outcome reason when set.
	Reason string `yaml:"reason,omitempty"`
	// Attempts is checked when non-zero.
	Attempts int `yaml:"attempts,omitempty"`
}

// Assertion checks the run beyond per-object outcomes.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Keys are source keys (used by order).
	Keys []string `yaml:"keys,omitempty"`

	// Op and Kind filter calls (used by write_count).
	Op    string `yaml:"op,omitempty"`
	Kind  string `yaml:"kind,omitempty"`
	Count int    `yaml:"count,omitempty"`

	// Name selects a destination object and Fields its expected values
	// (used by destination).
	Name   string         `yaml:"name,omitempty"`
	Fields map[string]any `yaml:"fields,omitempty"`
}

// Assertion types.
const (
	// AssertOrder checks the keys appear in plan order.
	AssertOrder = "order"
	// AssertWriteCount checks the number of destination writes.
	AssertWriteCount = "write_count"
	// AssertDestination checks fields of a destination object after the run.
	AssertDestination = "destination"
	// AssertRerunNoop re-runs the migration and checks it writes nothing.
	AssertRerunNoop = "rerun_noop"
)

var faultCodes = map[string]platform.ErrorCode{
	string(platform.ErrCodeValidation):   platform.ErrCodeValidation,
	string(platform.ErrCodeConflict):     platform.ErrCodeConflict,
	string(platform.ErrCodeNotFound):     platform.ErrCodeNotFound,
	string(platform.ErrCodeTransient):    platform.ErrCodeTransient,
	string(platform.ErrCodeUnauthorized): platform.ErrCodeUnauthorized,
}

// LoadScenario reads a scenario file. Unknown fields are rejected so typos
// fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Source) == 0 {
		return fmt.Errorf("source list is required and must be non-empty")
	}
	if len(s.Expect) == 0 {
		return fmt.Errorf("expect list is required and must be non-empty")
	}

	for i, o := range s.Source {
		if err := validateObject(o); err != nil {
			return fmt.Errorf("source[%d]: %w", i, err)
		}
	}
	for i, o := range s.Destination {
		if err := validateObject(o); err != nil {
			return fmt.Errorf("destination[%d]: %w", i, err)
		}
	}
	if _, err := model.ParseKinds(s.Options.Kinds); err != nil {
		return fmt.Errorf("options.kinds: %w", err)
	}
	if _, err := model.ParseKinds(s.Options.SkipKinds); err != nil {
		return fmt.Errorf("options.skip_kinds: %w", err)
	}

	for i, f := range s.Faults {
		if f.Op == "" {
			return fmt.Errorf("faults[%d]: op is required", i)
		}
		if _, err := model.ParseKind(f.Kind); err != nil {
			return fmt.Errorf("faults[%d]: %w", i, err)
		}
		if _, ok := faultCodes[f.Code]; !ok {
			return fmt.Errorf("faults[%d]: unknown code %q", i, f.Code)
		}
	}

	for i, e := range s.Expect {
		if _, err := model.ParseKey(e.Key); err != nil {
			return fmt.Errorf("expect[%d]: %w", i, err)
		}
		if !validStatus(e.Status) {
			return fmt.Errorf("expect[%d]: unknown status %q", i, e.Status)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateObject(o ObjectSpec) error {
	if _, err := model.ParseKind(o.Kind); err != nil {
		return err
	}
	if o.ID == "" {
		return fmt.Errorf("id is required")
	}
	return nil
}

func validStatus(s string) bool {
	for _, st := range executor.Statuses {
		if string(st) == s {
			return true
		}
	}
	return false
}

func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertOrder:
		if len(a.Keys) < 2 {
			return fmt.Errorf("assertions[%d]: order needs at least two keys", index)
		}
		for _, k := range a.Keys {
			if _, err := model.ParseKey(k); err != nil {
				return fmt.Errorf("assertions[%d]: %w", index, err)
			}
		}
	case AssertWriteCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertDestination:
		if _, err := model.ParseKind(a.Kind); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
		if a.Name == "" || len(a.Fields) == 0 {
			return fmt.Errorf("assertions[%d]: destination needs name and fields", index)
		}
	case AssertRerunNoop:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// object converts a spec into a model object through the platform record
// decoder.
func (o ObjectSpec) object() (model.Object, error) {
	kind, err := model.ParseKind(o.Kind)
	if err != nil {
		return model.Object{}, err
	}
	rec := make(map[string]any, len(o.Fields)+3)
	for k, v := range o.Fields {
		rec[k] = v
	}
	rec["id"] = o.ID
	if o.Name != "" {
		rec["name"] = o.Name
	}
	if len(o.Annotations) > 0 {
		ann := make(map[string]any, len(o.Annotations))
		for k, v := range o.Annotations {
			ann[k] = v
		}
		rec["annotations"] = ann
	}
	return model.FromRecord(kind, rec)
}
