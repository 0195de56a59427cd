package parser_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/buildbeaver/depchain/common/models"
	"github.com/buildbeaver/depchain/server/services/pipeline/parser"
)

func TestParseFormats(t *testing.T) {
	tests := []struct {
		file       string
		config     string
		configType models.ConfigType
	}{
		{"depchain.yml", pipelineYAML, models.ConfigTypeYAML},
		{"depchain.json", pipelineJSON, models.ConfigTypeJSON},
		{"depchain.jsonnet", pipelineJSONNET, models.ConfigTypeJSONNET},
		{"depchain.hcl", pipelineHCL, models.ConfigTypeHCL},
	}
	for _, test := range tests {
		t.Run(test.configType.String(), func(t *testing.T) {
			p := parser.NewPipelineParser(parser.ParserLimits{})
			jobs, err := p.Parse(test.file, []byte(test.config), test.configType)
			require.NoError(t, err)
			requireReferenceJobs(t, test.file, jobs)
		})
	}
}

func requireReferenceJobs(t *testing.T, file string, jobs []*models.BuildJob) {
	require.Len(t, jobs, 3)
	for _, job := range jobs {
		require.Equal(t, file, job.SourceFile)
		require.NoError(t, job.Validate())
	}

	compile := jobs[0]
	require.Equal(t, models.JobID("compile"), compile.ID)
	require.Equal(t, "Compile", compile.Name)
	require.Equal(t, models.Params{"env.GOOS": "linux", "level": "2"}, compile.Params)
	require.Equal(t, []string{"go build -o bin/app ./..."}, compile.Commands)
	require.Len(t, compile.ArtifactRules, 2)
	require.Equal(t, models.ArtifactRule{Source: "bin/**", Destination: "dist"}, compile.ArtifactRules[0])
	require.Equal(t, models.ArtifactRule{Source: "bin/**/*.tmp", Exclude: true}, compile.ArtifactRules[1])
	require.Empty(t, compile.Dependencies)

	lint := jobs[1]
	require.Equal(t, models.JobID("lint"), lint.ID)
	require.Equal(t, []string{"golangci-lint run"}, lint.Commands)

	pkg := jobs[2]
	require.Equal(t, models.JobID("package"), pkg.ID)
	require.Len(t, pkg.Dependencies, 2)

	toCompile := pkg.FindLink("compile")
	require.NotNil(t, toCompile)
	require.Equal(t, models.JobID("package"), toCompile.Owner)
	require.Equal(t, models.ReusePolicyAlwaysRebuild, toCompile.ReuseBuilds)
	require.Equal(t, models.FailurePolicyFailDependent, toCompile.OnDependencyFailure)
	require.NotNil(t, toCompile.Artifacts)
	require.True(t, toCompile.Artifacts.CleanDestination)
	require.Equal(t, models.ArtifactRules{{Source: "dist/**", Destination: "input"}}, toCompile.Artifacts.Rules)

	toLint := pkg.FindLink("lint")
	require.NotNil(t, toLint)
	require.Equal(t, models.DefaultReusePolicy, toLint.ReuseBuilds)
	require.Equal(t, models.DefaultFailurePolicy, toLint.OnDependencyFailure)
	require.Nil(t, toLint.Artifacts)
	require.False(t, toLint.HasArtifacts())
}

func TestParseErrors(t *testing.T) {
	p := parser.NewPipelineParser(parser.ParserLimits{})
	tests := map[string]struct {
		config     string
		configType models.ConfigType
	}{
		"top level array":   {`[]`, models.ConfigTypeJSON},
		"missing jobs":      {`version: "1"`, models.ConfigTypeYAML},
		"unknown version":   {`{"version": "7", "jobs": []}`, models.ConfigTypeJSON},
		"unknown policy":    {`{"jobs": [{"id": "a", "dependencies": [{"target": "b", "reuseBuilds": "SOMETIMES"}]}]}`, models.ConfigTypeJSON},
		"escaping rule":     {`{"jobs": [{"id": "a", "artifactRules": "../secrets/** => x"}]}`, models.ConfigTypeJSON},
		"absolute rule":     {`{"jobs": [{"id": "a", "artifactRules": "/etc/passwd"}]}`, models.ConfigTypeJSON},
		"missing id":        {`{"jobs": [{"commands": ["true"]}]}`, models.ConfigTypeJSON},
		"bad hcl":           {`job "a" {`, models.ConfigTypeHCL},
		"unsupported type":  {`x`, models.ConfigTypeUnknown},
		"dependency target": {`{"jobs": [{"id": "a", "dependencies": [{"reuseBuilds": "NO"}]}]}`, models.ConfigTypeJSON},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := p.Parse("pipeline", []byte(test.config), test.configType)
			require.Error(t, err)
		})
	}
}

func TestParseLimits(t *testing.T) {
	p := parser.NewPipelineParser(parser.ParserLimits{MaxJobsPerFile: 2})
	_, err := p.Parse("depchain.yml", []byte(pipelineYAML), models.ConfigTypeYAML)
	require.Error(t, err)

	p = parser.NewPipelineParser(parser.ParserLimits{MaxCommandsPerJob: 1})
	_, err = p.Parse("depchain.yml", []byte(pipelineYAML), models.ConfigTypeYAML)
	require.NoError(t, err)
}

func TestParseHCLEnvironment(t *testing.T) {
	require.NoError(t, os.Setenv("DEPCHAIN_TEST_TARGET", "linux"))
	defer os.Unsetenv("DEPCHAIN_TEST_TARGET")

	config := `
job "compile" {
  params   = { "env.GOOS" = env.DEPCHAIN_TEST_TARGET }
  commands = ["go build"]
}
`
	p := parser.NewPipelineParser(parser.ParserLimits{})
	jobs, err := p.Parse("depchain.hcl", []byte(config), models.ConfigTypeHCL)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, "linux", jobs[0].Params["env.GOOS"])
}
