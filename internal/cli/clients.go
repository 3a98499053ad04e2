package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/pflag"

	"github.com/roach88/cfgmigrate/internal/platform"
	"github.com/roach88/cfgmigrate/internal/platform/httpapi"
)

// Default environment variables holding API keys.
const (
	EnvSourceAPIKey = "CFGMIGRATE_SOURCE_API_KEY"
	EnvDestAPIKey   = "CFGMIGRATE_DEST_API_KEY"
)

// Endpoint is a resolved instance location and credential.
type Endpoint struct {
	Region string
	URL    string
	APIKey string
}

// Label names the endpoint in logs and the journal.
func (e Endpoint) Label() string {
	if e.URL != "" {
		return e.URL
	}
	return e.Region
}

// ClientFactory builds a platform client for an endpoint.
type ClientFactory func(ep Endpoint, logger *slog.Logger) (platform.Client, error)

// NewHTTPClient is the default ClientFactory.
func NewHTTPClient(ep Endpoint, logger *slog.Logger) (platform.Client, error) {
	return httpapi.New(httpapi.Config{
		Region:  ep.Region,
		BaseURL: ep.URL,
		APIKey:  ep.APIKey,
		Logger:  logger,
	})
}

// endpointFlags are the per-instance flags of one side of a migration.
type endpointFlags struct {
	side   string // "source" or "dest"
	envVar string

	Region string
	URL    string
	APIKey string
}

func (f *endpointFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.Region, f.side+"-region", "", fmt.Sprintf("%s region code (default %s)", f.side, httpapi.DefaultRegion))
	fs.StringVar(&f.URL, f.side+"-url", "", f.side+" instance URL, overrides the region")
	fs.StringVar(&f.APIKey, f.side+"-api-key", "", fmt.Sprintf("%s API key (default $%s)", f.side, f.envVar))
}

// resolve merges flags, the config file and the environment. The API key
// comes from the flag, then the configured variable, then the default one.
func (f *endpointFlags) resolve(cfg EndpointConfig, getenv func(string) string) (Endpoint, error) {
	ep := Endpoint{
		Region: firstNonEmpty(f.Region, cfg.Region),
		URL:    firstNonEmpty(f.URL, cfg.URL),
		APIKey: f.APIKey,
	}
	if ep.URL == "" {
		if ep.Region == "" {
			ep.Region = httpapi.DefaultRegion
		}
		region, err := httpapi.LookupRegion(ep.Region)
		if err != nil {
			return Endpoint{}, fmt.Errorf("%s: %w", f.side, err)
		}
		ep.Region = region.Code
	}

	if ep.APIKey == "" && cfg.APIKeyEnv != "" {
		ep.APIKey = getenv(cfg.APIKeyEnv)
	}
	if ep.APIKey == "" {
		ep.APIKey = getenv(f.envVar)
	}
	if ep.APIKey == "" {
		vars := []string{"$" + f.envVar}
		if cfg.APIKeyEnv != "" {
			vars = append([]string{"$" + cfg.APIKeyEnv}, vars...)
		}
		return Endpoint{}, fmt.Errorf("%s API key not set: use --%s-api-key or %s", f.side, f.side, strings.Join(vars, " or "))
	}
	return ep, nil
}

// connect resolves one side's endpoint and builds its client. Failures are
// reported through out as credential errors named after the side.
func (o *RootOptions) connect(out *OutputFormatter, f *endpointFlags, cfg EndpointConfig, name string) (platform.Client, Endpoint, error) {
	ep, err := f.resolve(cfg, o.getenv)
	if err != nil {
		return nil, Endpoint{}, out.Fail(ExitCommandError, CodeCredentials, name+" instance", err)
	}
	client, err := o.NewClient(ep, o.log().With("instance", name))
	if err != nil {
		return nil, Endpoint{}, out.Fail(ExitCommandError, CodeCredentials, name+" client", err)
	}
	return client, ep, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
