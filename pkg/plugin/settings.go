package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/grafana/grafana-plugin-sdk-go/backend"
	"github.com/grafana/grafana-plugin-sdk-go/backend/httpclient"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/multierr"
)

// Edition is the Checkmk feature tier declared in the datasource configuration
type Edition string

const (
	EditionRaw Edition = "RAW"
	EditionCEE Edition = "CEE"
)

// BackendType selects the API generation
type BackendType string

const (
	BackendTypeWeb  BackendType = "web"
	BackendTypeREST BackendType = "rest"
)

// Settings is the parsed datasource configuration
type Settings struct {
	URL      string      `mapstructure:"-"`
	Secret   string      `mapstructure:"-"`
	Username string      `mapstructure:"username"`
	Edition  Edition     `mapstructure:"edition"`
	Backend  BackendType `mapstructure:"backend"`

	// LegacyURLAuth sends credentials as _username/_secret query parameters, as Web-API
	// versions without header authentication require
	LegacyURLAuth bool `mapstructure:"legacyUrlAuth"`
}

// LoadSettings parses instance settings and applies the edition and backend defaults.
// All configuration problems are reported together.
func LoadSettings(instance backend.DataSourceInstanceSettings) (*Settings, error) {
	raw := map[string]any{}
	if len(instance.JSONData) > 0 {
		if err := json.Unmarshal(instance.JSONData, &raw); err != nil {
			return nil, wrapAPIError(ErrorKindConfiguration, fmt.Sprintf("failed to parse JSONData: %v", err), err)
		}
	}

	var errs error

	// a username that is not a string can not be recovered from
	switch username := raw["username"].(type) {
	case string:
	case nil:
		errs = multierr.Append(errs, fmt.Errorf("username is not configured"))
	default:
		errs = multierr.Append(errs, fmt.Errorf("username must be a string, got %T", username))
		delete(raw, "username")
	}

	settings := &Settings{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           settings,
		WeaklyTypedInput: false,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		errs = multierr.Append(errs, err)
	}

	settings.URL = strings.TrimSuffix(instance.URL, "/")
	if settings.URL == "" {
		errs = multierr.Append(errs, fmt.Errorf("url is not configured"))
	}
	settings.Secret = instance.DecryptedSecureJSONData["secret"]

	if settings.Edition == "" {
		settings.Edition = EditionRaw
	}
	switch settings.Backend {
	case "":
		settings.Backend = BackendTypeREST
	case BackendTypeWeb, BackendTypeREST:
	default:
		errs = multierr.Append(errs, fmt.Errorf("unknown backend %q, expected %q or %q", settings.Backend, BackendTypeWeb, BackendTypeREST))
	}

	if errs != nil {
		return nil, wrapAPIError(ErrorKindConfiguration, "invalid datasource configuration: "+errs.Error(), errs)
	}
	return settings, nil
}

// authorization is the automation user header understood by the REST API and by Web-API
// pages since 2.1
func (s *Settings) authorization() string {
	return fmt.Sprintf("Bearer %s %s", s.Username, s.Secret)
}

// authorize adds transport level credentials unless they travel in the URL
func (s *Settings) authorize(req *http.Request) {
	if s.LegacyURLAuth {
		return
	}
	req.Header.Set("Authorization", s.authorization())
}

// newHTTPClient builds the client shared by both backends from the instance's HTTP options
func newHTTPClient(ctx context.Context, instance backend.DataSourceInstanceSettings) (*http.Client, error) {
	opts, err := instance.HTTPClientOptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get HTTP client options: %w", err)
	}
	client, err := httpclient.New(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}
	return client, nil
}
