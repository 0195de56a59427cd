package parser

import (
	"strconv"

	"github.com/pkg/errors"

	"github.com/buildbeaver/depchain/common/models"
)

type pipelineParserV1 struct {
	limits ParserLimits
}

func newPipelineParserV1(limits ParserLimits) *pipelineParserV1 {
	return &pipelineParserV1{
		limits: limits,
	}
}

// Parse parses a pipeline file of this specific version.
func (s *pipelineParserV1) Parse(file string, topLevelElement map[string]interface{}) ([]*models.BuildJob, error) {
	rJobs, ok := topLevelElement["jobs"]
	if !ok {
		return nil, errors.Errorf("pipeline file does not contain a 'jobs' list")
	}
	rJobsArray, ok := rJobs.([]interface{})
	if !ok {
		return nil, errors.Errorf("'jobs' element must contain an array but found %T", rJobs)
	}
	jobs := make([]*models.BuildJob, len(rJobsArray))
	for i, obj := range rJobsArray {
		element, ok := obj.(map[string]interface{})
		if !ok {
			return nil, errors.Errorf("element at index %d of 'jobs' is not a job object: %T", i, obj)
		}
		job, err := s.parseJob(element)
		if err != nil {
			return nil, errors.Wrapf(err, "error parsing job at index %d", i)
		}
		job.SourceFile = file
		jobs[i] = job
	}
	if err := checkLimits(s.limits, jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (s *pipelineParserV1) parseJob(raw map[string]interface{}) (*models.BuildJob, error) {
	job := &models.BuildJob{Params: models.Params{}}

	rName, ok := raw["name"]
	if ok {
		job.Name, ok = rName.(string)
		if !ok {
			return nil, errors.Errorf("expected job 'name' field to be a string but found: %T", rName)
		}
	}

	// The id defaults to the name, so short pipelines only need one of them
	rID, ok := raw["id"]
	if ok {
		id, ok := rID.(string)
		if !ok {
			return nil, errors.Errorf("expected job 'id' field to be a string but found: %T", rID)
		}
		job.ID = models.JobID(id)
	} else {
		job.ID = models.JobID(job.Name)
	}
	if job.ID == "" {
		return nil, errors.Errorf("job must have an 'id' or a 'name'")
	}

	rDescription, ok := raw["description"]
	if ok {
		job.Description, ok = rDescription.(string)
		if !ok {
			return nil, errors.Errorf("expected job 'description' field to be a string but found: %T", rDescription)
		}
	}

	rParams, ok := raw["params"]
	if ok {
		params, err := s.parseParams(rParams)
		if err != nil {
			return nil, errors.Wrap(err, "error parsing job 'params'")
		}
		job.Params = params
	}

	rArtifactRules, ok := raw["artifactRules"]
	if ok {
		rules, err := s.parseArtifactRules(rArtifactRules)
		if err != nil {
			return nil, errors.Wrap(err, "error parsing job 'artifactRules'")
		}
		job.ArtifactRules = rules
	}

	rCommands, ok := raw["commands"]
	if ok {
		commands, err := s.parseStrings(rCommands)
		if err != nil {
			return nil, errors.Wrap(err, "error parsing job 'commands'")
		}
		job.Commands = commands
	}

	rDependencies, ok := raw["dependencies"]
	if ok {
		rDependenciesArray, ok := rDependencies.([]interface{})
		if !ok {
			return nil, errors.Errorf("expected job 'dependencies' field to be an array but found: %T", rDependencies)
		}
		for i, obj := range rDependenciesArray {
			link, err := s.parseDependency(job.ID, obj)
			if err != nil {
				return nil, errors.Wrapf(err, "error parsing dependency at index %d", i)
			}
			job.Dependencies = append(job.Dependencies, link)
		}
	}

	return job, nil
}

// parseDependency parses either a target job id on its own (all defaults, no artifacts) or a full
// dependency object.
func (s *pipelineParserV1) parseDependency(owner models.JobID, raw interface{}) (*models.DependencyLink, error) {
	if target, ok := raw.(string); ok {
		return newDependencyLink(owner, target, "", "")
	}
	element, ok := raw.(map[string]interface{})
	if !ok {
		return nil, errors.Errorf("expected dependency to be a string or an object but found: %T", raw)
	}

	var target, reuse, onFailure string
	rTarget, ok := element["target"]
	if !ok {
		return nil, errors.Errorf("dependency must have a 'target'")
	}
	target, ok = rTarget.(string)
	if !ok {
		return nil, errors.Errorf("expected dependency 'target' field to be a string but found: %T", rTarget)
	}
	rReuse, ok := element["reuseBuilds"]
	if ok {
		reuse, ok = rReuse.(string)
		if !ok {
			return nil, errors.Errorf("expected dependency 'reuseBuilds' field to be a string but found: %T", rReuse)
		}
	}
	rOnFailure, ok := element["onDependencyFailure"]
	if ok {
		onFailure, ok = rOnFailure.(string)
		if !ok {
			return nil, errors.Errorf("expected dependency 'onDependencyFailure' field to be a string but found: %T", rOnFailure)
		}
	}
	link, err := newDependencyLink(owner, target, reuse, onFailure)
	if err != nil {
		return nil, err
	}

	rArtifacts, ok := element["artifacts"]
	if ok {
		artifacts, ok := rArtifacts.(map[string]interface{})
		if !ok {
			return nil, errors.Errorf("expected dependency 'artifacts' field to be an object but found: %T", rArtifacts)
		}
		link.Artifacts = &models.ArtifactDependency{}
		rClean, ok := artifacts["cleanDestination"]
		if ok {
			clean, err := s.parseBool(rClean)
			if err != nil {
				return nil, errors.Wrap(err, "error parsing dependency 'artifacts.cleanDestination'")
			}
			link.Artifacts.CleanDestination = clean
		}
		rRules, ok := artifacts["artifactRules"]
		if !ok {
			return nil, errors.Errorf("dependency 'artifacts' must have 'artifactRules'")
		}
		rules, err := s.parseArtifactRules(rRules)
		if err != nil {
			return nil, errors.Wrap(err, "error parsing dependency 'artifacts.artifactRules'")
		}
		link.Artifacts.Rules = rules
	}
	return link, nil
}

// parseArtifactRules accepts either a single string of newline or comma separated rules, or an array of rules.
func (s *pipelineParserV1) parseArtifactRules(raw interface{}) (models.ArtifactRules, error) {
	switch value := raw.(type) {
	case string:
		return models.ParseArtifactRules(value)
	case []interface{}:
		var rules models.ArtifactRules
		for i, obj := range value {
			str, ok := obj.(string)
			if !ok {
				return nil, errors.Errorf("expected artifact rule at index %d to be a string but found: %T", i, obj)
			}
			rule, err := models.ParseArtifactRule(str)
			if err != nil {
				return nil, err
			}
			rules = append(rules, rule)
		}
		return rules, nil
	default:
		return nil, errors.Errorf("expected artifact rules to be a string or an array of strings but found: %T", raw)
	}
}

func (s *pipelineParserV1) parseParams(raw interface{}) (models.Params, error) {
	element, ok := raw.(map[string]interface{})
	if !ok {
		return nil, errors.Errorf("expected an object but found: %T", raw)
	}
	params := make(models.Params, len(element))
	for name, rValue := range element {
		switch value := rValue.(type) {
		case string:
			params[name] = value
		case float64:
			params[name] = strconv.FormatFloat(value, 'f', -1, 64)
		case bool:
			params[name] = strconv.FormatBool(value)
		default:
			return nil, errors.Errorf("expected param %q to be a string but found: %T", name, rValue)
		}
	}
	return params, nil
}

func (s *pipelineParserV1) parseStrings(raw interface{}) ([]string, error) {
	switch value := raw.(type) {
	case string:
		return []string{value}, nil
	case []interface{}:
		strs := make([]string, len(value))
		for i, obj := range value {
			str, ok := obj.(string)
			if !ok {
				return nil, errors.Errorf("expected element at index %d to be a string but found: %T", i, obj)
			}
			strs[i] = str
		}
		return strs, nil
	default:
		return nil, errors.Errorf("expected a string or an array of strings but found: %T", raw)
	}
}

// parseBool accepts JSON booleans and the strings produced by normalizeMapValues() for YAML booleans.
func (s *pipelineParserV1) parseBool(raw interface{}) (bool, error) {
	switch value := raw.(type) {
	case bool:
		return value, nil
	case string:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return false, errors.Errorf("expected a boolean but found %q", value)
		}
		return b, nil
	default:
		return false, errors.Errorf("expected a boolean but found: %T", raw)
	}
}
