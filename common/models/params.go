package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// EnvParamPrefix marks params that are exported to commands as environment variables.
const EnvParamPrefix = "env."

// Params maps parameter names to values.
type Params map[string]string

// Merge returns a copy of the params with overrides applied on top.
func (m Params) Merge(overrides Params) Params {
	merged := make(Params, len(m)+len(overrides))
	for k, v := range m {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// Names returns the param names in sorted order.
func (m Params) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EnvVars returns "NAME=value" pairs for every env.NAME param, sorted by name.
func (m Params) EnvVars() []string {
	var vars []string
	for _, name := range m.Names() {
		if strings.HasPrefix(name, EnvParamPrefix) {
			vars = append(vars, fmt.Sprintf("%s=%s", strings.TrimPrefix(name, EnvParamPrefix), m[name]))
		}
	}
	return vars
}

func (m Params) Validate() error {
	var result *multierror.Error
	for name := range m {
		if strings.TrimSpace(name) == "" || strings.ContainsAny(name, " \t\n=") {
			result = multierror.Append(result, fmt.Errorf("error invalid param name %q", name))
		}
		if name == EnvParamPrefix {
			result = multierror.Append(result, fmt.Errorf("error param %q is missing an environment variable name", name))
		}
	}
	return result.ErrorOrNil()
}

// ParseParamOverrides parses "name=value" strings, as supplied on the command line or in query strings.
func ParseParamOverrides(pairs []string) (Params, error) {
	params := Params{}
	for _, pair := range pairs {
		i := strings.Index(pair, "=")
		if i <= 0 {
			return nil, fmt.Errorf("error param %q must be of the form name=value", pair)
		}
		params[pair[:i]] = pair[i+1:]
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return params, nil
}

func (m *Params) Scan(src interface{}) error {
	if src == nil {
		*m = nil
		return nil
	}
	return scanJSON(src, m)
}

func (m Params) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	buf, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("error marshalling params to JSON: %w", err)
	}
	return string(buf), nil
}
