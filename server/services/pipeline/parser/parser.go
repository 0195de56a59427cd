package parser

import (
	"encoding/json"
	"fmt"

	"github.com/google/go-jsonnet"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/buildbeaver/depchain/common/models"
)

// pipelineVersionedParser is an object capable of parsing a specific version of a pipeline file.
type pipelineVersionedParser interface {
	Parse(file string, topLevelElement map[string]interface{}) ([]*models.BuildJob, error)
}

// ParserLimits provides a parser with information on limits to check while parsing. If the data goes beyond
// any limit then parsing should fail. A zero limit is not checked.
type ParserLimits struct {
	// MaxJobsPerFile is the maximum number of jobs a single pipeline file may declare.
	MaxJobsPerFile int
	// MaxCommandsPerJob is the maximum number of commands in any single job.
	MaxCommandsPerJob int
}

type PipelineParser struct {
	limits ParserLimits
}

func NewPipelineParser(limits ParserLimits) *PipelineParser {
	return &PipelineParser{
		limits: limits,
	}
}

// Parse parses the raw contents of a pipeline file. file is recorded as the source of each job and is
// used in error messages; it is not read.
func (s *PipelineParser) Parse(file string, config []byte, configType models.ConfigType) ([]*models.BuildJob, error) {
	var (
		err error
		raw interface{}
	)
	switch configType {
	case models.ConfigTypeYAML:
		raw, err = s.parseFromYAML(config)
	case models.ConfigTypeJSON:
		raw, err = s.parseFromJSON(config)
	case models.ConfigTypeJSONNET:
		raw, err = s.parseFromJSONNET(file, config)
	case models.ConfigTypeHCL:
		jobs, err := newPipelineParserHCL(s.limits).Parse(file, config)
		if err != nil {
			return nil, fmt.Errorf("error parsing pipeline file %s: %w", file, err)
		}
		return jobs, nil
	default:
		return nil, errors.Errorf("error: unsupported pipeline file type: %s", configType)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "error unmarshalling pipeline file %s from %s", file, configType)
	}

	// All versions must have a top-level object rather than an array.
	topLevelElement, ok := raw.(map[string]interface{})
	if !ok {
		return nil, errors.Errorf("error parsing pipeline file %s: must contain a top-level object: %T", file, raw)
	}

	version, err := s.parseVersion(topLevelElement["version"])
	if err != nil {
		return nil, fmt.Errorf("error parsing pipeline file %s: %w", file, err)
	}

	// Create a parser specific to the version to parse the rest of the data
	var parser pipelineVersionedParser
	switch version {
	case "1", "1.0":
		parser = newPipelineParserV1(s.limits)
	default:
		return nil, errors.Errorf("error parsing pipeline file %s: version %s not supported", file, version)
	}

	jobs, err := parser.Parse(file, topLevelElement)
	if err != nil {
		return nil, fmt.Errorf("error parsing pipeline file %s: %w", file, err)
	}
	return jobs, nil
}

// parseVersion returns the version of the file, defaulting to the latest version if it is not set.
func (s *PipelineParser) parseVersion(rVersion interface{}) (string, error) {
	const latestVersion = "1"
	switch value := rVersion.(type) {
	case nil:
		return latestVersion, nil
	case string:
		return value, nil
	case float64:
		// JSON numbers; YAML numbers are already strings after normalizeMapValues()
		return fmt.Sprintf("%v", value), nil
	default:
		return "", errors.Errorf("expected 'version' field to be a string but found: %T", rVersion)
	}
}

func (s *PipelineParser) parseFromYAML(config []byte) (interface{}, error) {
	var raw interface{}
	err := yaml.Unmarshal(config, &raw)
	if err != nil {
		return nil, errors.Wrap(err, "error unmarshalling yml")
	}
	raw = s.normalizeMapValues(raw)
	return raw, nil
}

func (s *PipelineParser) parseFromJSON(config []byte) (interface{}, error) {
	var raw interface{}
	err := json.Unmarshal(config, &raw)
	if err != nil {
		return nil, errors.Wrap(err, "error unmarshalling json")
	}
	return raw, nil
}

func (s *PipelineParser) parseFromJSONNET(file string, config []byte) (interface{}, error) {
	vm := jsonnet.MakeVM()
	json, err := vm.EvaluateSnippet(file, string(config))
	if err != nil {
		return nil, errors.Wrap(err, "error parsing jsonnet")
	}
	return s.parseFromJSON([]byte(json))
}

// normalizeMapValues iterates through all properties (including nested properties)
// of an object and converts all map[interface{}]interface{} that have a string key
// to map[string]interface{}. This is intended to be used to normalize the output of
// the yaml parser, to make it consistent with the JSON parser in the go standard lib.
func (s *PipelineParser) normalizeMapValues(v interface{}) interface{} {
	switch v := v.(type) {
	case []interface{}:
		return s.normalizeInterfaceArray(v)
	case map[interface{}]interface{}:
		return s.cleanupInterfaceMap(v)
	case string, nil:
		return v
	default:
		// This will convert integers, floats and booleans to strings
		return fmt.Sprintf("%v", v)
	}
}

func (s *PipelineParser) normalizeInterfaceArray(in []interface{}) []interface{} {
	res := make([]interface{}, len(in))
	for i, v := range in {
		res[i] = s.normalizeMapValues(v)
	}
	return res
}

func (s *PipelineParser) cleanupInterfaceMap(in map[interface{}]interface{}) map[string]interface{} {
	res := make(map[string]interface{})
	for k, v := range in {
		res[fmt.Sprintf("%v", k)] = s.normalizeMapValues(v)
	}
	return res
}

// checkLimits applies limits that are common to every file format.
func checkLimits(limits ParserLimits, jobs []*models.BuildJob) error {
	if limits.MaxJobsPerFile > 0 && len(jobs) > limits.MaxJobsPerFile {
		return errors.Errorf("file declares %d jobs; at most %d are allowed", len(jobs), limits.MaxJobsPerFile)
	}
	if limits.MaxCommandsPerJob > 0 {
		for _, job := range jobs {
			if len(job.Commands) > limits.MaxCommandsPerJob {
				return errors.Errorf("job %q has %d commands; at most %d are allowed", job.ID, len(job.Commands), limits.MaxCommandsPerJob)
			}
		}
	}
	return nil
}

// newDependencyLink makes a link with the policies parsed from their string form, applying defaults.
func newDependencyLink(owner models.JobID, target string, reuse string, onFailure string) (*models.DependencyLink, error) {
	reusePolicy, err := models.ParseReusePolicy(reuse)
	if err != nil {
		return nil, err
	}
	failurePolicy, err := models.ParseFailurePolicy(onFailure)
	if err != nil {
		return nil, err
	}
	return &models.DependencyLink{
		Owner:               owner,
		Target:              models.JobID(target),
		ReuseBuilds:         reusePolicy,
		OnDependencyFailure: failurePolicy,
	}, nil
}
