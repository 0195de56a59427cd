package models

import (
	"path/filepath"
	"strings"
)

// DefaultPipelineFileName is looked for in the work dir when no pipeline paths are given.
const DefaultPipelineFileName = "depchain.yml"

const (
	ConfigTypeYAML    ConfigType = "yaml"
	ConfigTypeJSON    ConfigType = "json"
	ConfigTypeJSONNET ConfigType = "jsonnet"
	ConfigTypeHCL     ConfigType = "hcl"
	// ConfigTypeUnknown indicates that a file is not a pipeline file depchain understands.
	ConfigTypeUnknown ConfigType = "unknown"
)

var configTypesByExtension = map[string]ConfigType{
	".yml":     ConfigTypeYAML,
	".yaml":    ConfigTypeYAML,
	".json":    ConfigTypeJSON,
	".jsonnet": ConfigTypeJSONNET,
	".hcl":     ConfigTypeHCL,
}

type ConfigType string

// ConfigTypeForPath returns the config type of a pipeline file based on its extension.
func ConfigTypeForPath(path string) ConfigType {
	configType, ok := configTypesByExtension[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return ConfigTypeUnknown
	}
	return configType
}

func (s ConfigType) Valid() bool {
	return s != "" && s != ConfigTypeUnknown
}

func (s ConfigType) String() string {
	return string(s)
}
