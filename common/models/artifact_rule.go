package models

import (
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v2"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

const (
	artifactRuleIncludePrefix = "+:"
	artifactRuleExcludePrefix = "-:"
	artifactRuleArrow         = "=>"
	globMetaChars             = "*?[{"
)

// ArtifactRule selects files by a doublestar glob relative to a root directory (a workspace or a run's
// output area) and places each match under Destination, keeping the part of its path that follows the
// wildcard-free prefix of Source. "dist/**/*.jar => lib" maps "dist/a/b.jar" to "lib/a/b.jar".
type ArtifactRule struct {
	Exclude     bool   `json:"exclude,omitempty"`
	Source      string `json:"source"`
	Destination string `json:"destination,omitempty"`
}

// ParseArtifactRule parses a single rule of the form "[+:|-:]source [=> destination]".
func ParseArtifactRule(str string) (ArtifactRule, error) {
	rule := ArtifactRule{}
	str = strings.TrimSpace(str)
	switch {
	case strings.HasPrefix(str, artifactRuleExcludePrefix):
		rule.Exclude = true
		str = str[len(artifactRuleExcludePrefix):]
	case strings.HasPrefix(str, artifactRuleIncludePrefix):
		str = str[len(artifactRuleIncludePrefix):]
	}
	source, destination := str, ""
	if i := strings.Index(str, artifactRuleArrow); i >= 0 {
		source, destination = str[:i], str[i+len(artifactRuleArrow):]
	}
	rule.Source = normalizeRulePath(source)
	rule.Destination = normalizeRulePath(destination)
	if rule.Destination == "." {
		rule.Destination = ""
	}
	if err := rule.Validate(); err != nil {
		return ArtifactRule{}, err
	}
	return rule, nil
}

func normalizeRulePath(str string) string {
	str = strings.ReplaceAll(strings.TrimSpace(str), "\\", "/")
	if str == "" {
		return ""
	}
	return path.Clean(str)
}

func (m ArtifactRule) Validate() error {
	if m.Source == "" {
		return errors.New("error artifact rule source must be set")
	}
	if err := validateRelativeRulePath(m.Source); err != nil {
		return errors.Wrapf(err, "error invalid artifact rule source %q", m.Source)
	}
	if m.Destination != "" {
		if m.Exclude {
			return fmt.Errorf("error exclude rule %q cannot have a destination", m.Source)
		}
		if strings.ContainsAny(m.Destination, globMetaChars) {
			return fmt.Errorf("error artifact rule destination %q must not contain wildcards", m.Destination)
		}
		if err := validateRelativeRulePath(m.Destination); err != nil {
			return errors.Wrapf(err, "error invalid artifact rule destination %q", m.Destination)
		}
	}
	return nil
}

func validateRelativeRulePath(str string) error {
	if strings.HasPrefix(str, "/") || (len(str) > 1 && str[1] == ':') {
		return errors.New("path must be relative")
	}
	for _, part := range strings.Split(str, "/") {
		if part == ".." {
			return errors.New("path must not contain '..'")
		}
	}
	return nil
}

// StaticPrefix returns the leading directories of Source that contain no wildcards. For a source with
// no wildcards at all this is the directory containing the file.
func (m ArtifactRule) StaticPrefix() string {
	parts := strings.Split(m.Source, "/")
	for i, part := range parts {
		if strings.ContainsAny(part, globMetaChars) {
			return strings.Join(parts[:i], "/")
		}
	}
	return strings.Join(parts[:len(parts)-1], "/")
}

// Matches returns true if the slash-separated relative path matches Source.
func (m ArtifactRule) Matches(relPath string) (bool, error) {
	return doublestar.Match(m.Source, relPath)
}

// PublishPath returns the path a workspace file matched by the rule is published at. Without a
// destination the file keeps its workspace-relative path.
func (m ArtifactRule) PublishPath(relPath string) string {
	if m.Destination == "" {
		return relPath
	}
	return m.TargetPath(relPath)
}

// TargetPath returns where a path matched by the rule is placed.
func (m ArtifactRule) TargetPath(relPath string) string {
	prefix := m.StaticPrefix()
	if prefix != "" {
		relPath = strings.TrimPrefix(relPath, prefix+"/")
	}
	return path.Join(m.Destination, relPath)
}

func (m ArtifactRule) String() string {
	str := m.Source
	if m.Exclude {
		str = artifactRuleExcludePrefix + str
	}
	if m.Destination != "" {
		str += " " + artifactRuleArrow + " " + m.Destination
	}
	return str
}

type ArtifactRules []ArtifactRule

// ParseArtifactRules parses rules separated by newlines or commas. Commas inside {a,b} alternations
// do not separate rules. Blank lines and lines starting with # are skipped.
func ParseArtifactRules(str string) (ArtifactRules, error) {
	var (
		rules  ArtifactRules
		result *multierror.Error
	)
	for _, item := range splitArtifactRules(str) {
		item = strings.TrimSpace(item)
		if item == "" || strings.HasPrefix(item, "#") {
			continue
		}
		rule, err := ParseArtifactRule(item)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		rules = append(rules, rule)
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return rules, nil
}

func splitArtifactRules(str string) []string {
	var (
		items []string
		depth int
		start int
	)
	for i, r := range str {
		switch r {
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		case ',', '\n':
			if r == ',' && depth > 0 {
				continue
			}
			items = append(items, str[start:i])
			start = i + 1
		}
	}
	return append(items, str[start:])
}

func (m ArtifactRules) Validate() error {
	var result *multierror.Error
	for _, rule := range m {
		if err := rule.Validate(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Includes returns the include rules.
func (m ArtifactRules) Includes() ArtifactRules {
	var rules ArtifactRules
	for _, rule := range m {
		if !rule.Exclude {
			rules = append(rules, rule)
		}
	}
	return rules
}

// Excluded returns true if any exclude rule matches the relative path.
func (m ArtifactRules) Excluded(relPath string) (bool, error) {
	for _, rule := range m {
		if !rule.Exclude {
			continue
		}
		match, err := rule.Matches(relPath)
		if err != nil {
			return false, err
		}
		if match {
			return true, nil
		}
	}
	return false, nil
}

// Destinations returns the distinct destination directories of the include rules, in rule order.
// The root is returned as "".
func (m ArtifactRules) Destinations() []string {
	seen := map[string]bool{}
	var dests []string
	for _, rule := range m.Includes() {
		if !seen[rule.Destination] {
			seen[rule.Destination] = true
			dests = append(dests, rule.Destination)
		}
	}
	return dests
}

func (m ArtifactRules) String() string {
	strs := make([]string, 0, len(m))
	for _, rule := range m {
		strs = append(strs, rule.String())
	}
	return strings.Join(strs, "\n")
}
