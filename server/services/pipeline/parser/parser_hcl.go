package parser

import (
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/pkg/errors"
	"github.com/zclconf/go-cty/cty"

	"github.com/buildbeaver/depchain/common/models"
)

type hclPipeline struct {
	Version string    `hcl:"version,optional"`
	Jobs    []*hclJob `hcl:"job,block"`
}

type hclJob struct {
	ID            string            `hcl:"id,label"`
	Name          string            `hcl:"name,optional"`
	Description   string            `hcl:"description,optional"`
	Params        map[string]string `hcl:"params,optional"`
	ArtifactRules string            `hcl:"artifact_rules,optional"`
	Commands      []string          `hcl:"commands,optional"`
	Dependencies  []*hclDependency  `hcl:"dependency,block"`
}

type hclDependency struct {
	Target              string        `hcl:"target,label"`
	ReuseBuilds         string        `hcl:"reuse_builds,optional"`
	OnDependencyFailure string        `hcl:"on_dependency_failure,optional"`
	Artifacts           *hclArtifacts `hcl:"artifacts,block"`
}

type hclArtifacts struct {
	CleanDestination bool   `hcl:"clean_destination,optional"`
	ArtifactRules    string `hcl:"artifact_rules"`
}

// pipelineParserHCL parses HCL pipeline files. HCL is decoded straight into typed blocks rather than
// walked as a generic map:
//
//	job "package" {
//	  commands = ["make dist"]
//	  dependency "compile" {
//	    reuse_builds = "ALWAYS_REBUILD"
//	    artifacts {
//	      artifact_rules = "bin/** => bin"
//	    }
//	  }
//	}
//
// Expressions may reference the process environment as env.NAME.
type pipelineParserHCL struct {
	limits ParserLimits
}

func newPipelineParserHCL(limits ParserLimits) *pipelineParserHCL {
	return &pipelineParserHCL{
		limits: limits,
	}
}

func (s *pipelineParserHCL) Parse(file string, config []byte) ([]*models.BuildJob, error) {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL(config, file)
	if diags.HasErrors() {
		return nil, errors.Wrap(diags, "error parsing hcl")
	}

	var parsed hclPipeline
	diags = gohcl.DecodeBody(hclFile.Body, s.evalContext(), &parsed)
	if diags.HasErrors() {
		return nil, errors.Wrap(diags, "error decoding hcl")
	}
	if parsed.Version != "" && parsed.Version != "1" && parsed.Version != "1.0" {
		return nil, errors.Errorf("version %s not supported", parsed.Version)
	}

	jobs := make([]*models.BuildJob, len(parsed.Jobs))
	for i, hJob := range parsed.Jobs {
		job, err := s.toJob(hJob)
		if err != nil {
			return nil, errors.Wrapf(err, "error parsing job %q", hJob.ID)
		}
		job.SourceFile = file
		jobs[i] = job
	}
	if err := checkLimits(s.limits, jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (s *pipelineParserHCL) toJob(hJob *hclJob) (*models.BuildJob, error) {
	job := &models.BuildJob{
		ID:          models.JobID(hJob.ID),
		Name:        hJob.Name,
		Description: hJob.Description,
		Params:      models.Params(hJob.Params),
		Commands:    hJob.Commands,
	}
	if job.Params == nil {
		job.Params = models.Params{}
	}
	rules, err := models.ParseArtifactRules(hJob.ArtifactRules)
	if err != nil {
		return nil, errors.Wrap(err, "error parsing job 'artifact_rules'")
	}
	job.ArtifactRules = rules

	for _, hDep := range hJob.Dependencies {
		link, err := newDependencyLink(job.ID, hDep.Target, hDep.ReuseBuilds, hDep.OnDependencyFailure)
		if err != nil {
			return nil, errors.Wrapf(err, "error parsing dependency %q", hDep.Target)
		}
		if hDep.Artifacts != nil {
			rules, err := models.ParseArtifactRules(hDep.Artifacts.ArtifactRules)
			if err != nil {
				return nil, errors.Wrapf(err, "error parsing dependency %q 'artifact_rules'", hDep.Target)
			}
			link.Artifacts = &models.ArtifactDependency{
				CleanDestination: hDep.Artifacts.CleanDestination,
				Rules:            rules,
			}
		}
		job.Dependencies = append(job.Dependencies, link)
	}
	return job, nil
}

// evalContext exposes the process environment to expressions as env.NAME.
func (s *pipelineParserHCL) evalContext() *hcl.EvalContext {
	env := make(map[string]cty.Value)
	for _, pair := range os.Environ() {
		i := strings.Index(pair, "=")
		if i <= 0 {
			continue
		}
		env[pair[:i]] = cty.StringVal(pair[i+1:])
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(env),
		},
	}
}
