package cli

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/encoding/yaml"
)

//go:embed config_schema.cue
var configSchema string

// Config is a configuration file. Every field is optional; flags override
// whatever the file sets.
type Config struct {
	Source      EndpointConfig `json:"source"`
	Destination EndpointConfig `json:"destination"`
	Defaults    Defaults       `json:"defaults"`
}

// EndpointConfig locates one instance.
type EndpointConfig struct {
	Region    string `json:"region"`
	URL       string `json:"url"`
	APIKeyEnv string `json:"api_key_env"`
}

// Defaults are default migrate options.
type Defaults struct {
	Workers        int      `json:"workers"`
	RetryAttempts  int      `json:"retry_attempts"`
	UpdateExisting bool     `json:"update_existing"`
	IncludeSystem  bool     `json:"include_system"`
	Journal        string   `json:"journal"`
	Skip           []string `json:"skip"`
}

// ConfigError is a configuration file that failed to load or validate.
type ConfigError struct {
	Path    string
	Line    int
	Message string
}

func (e *ConfigError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// LoadConfig reads a CUE, YAML or JSON configuration file and validates it
// against the embedded schema.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(configSchema, cue.Filename("config_schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("config schema: %w", err)
	}

	var value cue.Value
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".cue":
		value = ctx.CompileBytes(data, cue.Filename(path))
	case ".yaml", ".yml", ".json":
		// JSON is a subset of YAML.
		file, err := yaml.Extract(path, data)
		if err != nil {
			return nil, configError(path, err)
		}
		value = ctx.BuildFile(file)
	default:
		return nil, &ConfigError{Path: path, Message: fmt.Sprintf("unsupported config format %q: use .cue, .yaml or .json", ext)}
	}
	if err := value.Err(); err != nil {
		return nil, configError(path, err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, configError(path, err)
	}

	var cfg Config
	if err := unified.Decode(&cfg); err != nil {
		return nil, configError(path, err)
	}
	return &cfg, nil
}

// configError reports the first CUE error with its line when known.
func configError(path string, err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &ConfigError{Path: path, Message: err.Error()}
	}
	first := errs[0]
	ce := &ConfigError{Path: path, Message: first.Error()}
	for _, pos := range cueerrors.Positions(first) {
		if pos.Filename() == path {
			ce.Line = pos.Line()
			break
		}
	}
	return ce
}
