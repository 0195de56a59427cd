package runner

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fatih/structs"
)

type jobTemplateData struct {
	ID          string `structs:"id"`
	RunID       string `structs:"run_id"`
	PlanID      string `structs:"plan_id"`
	Fingerprint string `structs:"fingerprint"`
	Workspace   string `structs:"workspace"`
}

type dependencyTemplateData struct {
	ID          string `structs:"id"`
	RunID       string `structs:"run_id"`
	Status      string `structs:"status"`
	Fingerprint string `structs:"fingerprint"`
	Reused      bool   `structs:"reused"`
}

// fieldTemplateRegex matches our standard template syntax of "${{ jobs.compile.run_id }}"
var fieldTemplateRegex = regexp.MustCompile(`\$\{\{ *(.+?) *}}`)

// templatePartRegex matches a single part of a dotted template path.
var templatePartRegex = regexp.MustCompile(`^[a-zA-Z0-9_\-]+$`)

// makeTemplateData returns the variables available to the commands of the run:
// "params" (the run's effective params), "job" (the run itself) and "jobs" (the runs that
// satisfied the job's links, keyed by job id).
func makeTemplateData(ctx *RunContext) map[string]interface{} {
	run := ctx.Run()
	params := make(map[string]interface{}, len(run.Params))
	for name, value := range run.Params {
		params[name] = value
	}
	jobs := make(map[string]interface{})
	for _, link := range ctx.Step().Links {
		target := ctx.Target(link.Target)
		if target == nil {
			continue
		}
		jobs[link.Target.String()] = structs.Map(&dependencyTemplateData{
			ID:          target.JobID.String(),
			RunID:       target.ID.String(),
			Status:      target.Status.String(),
			Fingerprint: target.Fingerprint,
			Reused:      target.PlanID != run.PlanID,
		})
	}
	return map[string]interface{}{
		"params": params,
		"jobs":   jobs,
		"job": structs.Map(&jobTemplateData{
			ID:          run.JobID.String(),
			RunID:       run.ID.String(),
			PlanID:      run.PlanID.String(),
			Fingerprint: run.Fingerprint,
			Workspace:   ctx.Workspace(),
		}),
	}
}

// templateCommands returns the run's commands with every template substituted.
func templateCommands(commands []string, data map[string]interface{}) ([]string, error) {
	templated := make([]string, len(commands))
	for i, command := range commands {
		value, err := templateField(command, data)
		if err != nil {
			return nil, fmt.Errorf("error templating command %d: %w", i+1, err)
		}
		templated[i] = value
	}
	return templated, nil
}

// templateField substitutes all templates in the specified field value (if any) with corresponding
// variables from the data map.
func templateField(value string, data map[string]interface{}) (string, error) {
	matches := fieldTemplateRegex.FindAllStringSubmatch(value, 256) // Some upper bound we expect to never be hit
	for _, match := range matches {
		outer := match[0] // e.g. "${{ jobs.compile.run_id }}"
		inner := match[1] // e.g. "jobs.compile.run_id"
		current, err := resolveTemplatePath(inner, data)
		if err != nil {
			return "", err
		}
		value = strings.Replace(value, outer, fmt.Sprintf("%v", current), 1)
	}
	return value, nil
}

func resolveTemplatePath(path string, data map[string]interface{}) (interface{}, error) {
	parts := strings.Split(path, ".")
	// Param names may themselves contain dots (e.g. "env.GOOS")
	if parts[0] == "params" && len(parts) > 2 {
		parts = []string{parts[0], strings.Join(parts[1:], ".")}
	}
	var current interface{} = data
	for i, part := range parts {
		if i == 0 || parts[0] != "params" {
			if !templatePartRegex.MatchString(part) {
				return nil, fmt.Errorf("error invalid path part %q in %q", part, path)
			}
		}
		currentM, ok := current.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("error unknown %q", path)
		}
		next, ok := currentM[part]
		if !ok {
			return nil, fmt.Errorf("error resolving %q", path)
		}
		current = next
	}
	switch current.(type) {
	case string, int, int32, int64, float32, float64, bool:
	default:
		return nil, fmt.Errorf("error only primitive types can be templated: %q", path)
	}
	return current, nil
}
