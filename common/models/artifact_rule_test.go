package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseArtifactRules(t *testing.T) {
	rules, err := ParseArtifactRules(`
# generated docs
docs/build/**/*.{html,css} => site
+:dokka/api.md
-:docs/build/**/*.tmp, reports/*.xml => reports`)
	require.NoError(t, err)
	require.Len(t, rules, 4)

	require.Equal(t, ArtifactRule{Source: "docs/build/**/*.{html,css}", Destination: "site"}, rules[0])
	require.Equal(t, ArtifactRule{Source: "dokka/api.md"}, rules[1])
	require.Equal(t, ArtifactRule{Exclude: true, Source: "docs/build/**/*.tmp"}, rules[2])
	require.Equal(t, ArtifactRule{Source: "reports/*.xml", Destination: "reports"}, rules[3])

	require.Len(t, rules.Includes(), 3)
	require.Equal(t, []string{"site", "", "reports"}, rules.Destinations())
}

func TestParseArtifactRulesRejectsEscapes(t *testing.T) {
	for _, str := range []string{
		"../secrets/*",
		"/etc/passwd",
		"dist/** => ../outside",
		"dist/** => /abs",
		"dist/** => out/*",
		"-:dist/*.tmp => somewhere",
		"=> dest",
	} {
		_, err := ParseArtifactRules(str)
		require.Error(t, err, str)
	}
}

func TestArtifactRuleTargetPath(t *testing.T) {
	tests := []struct {
		rule     string
		path     string
		expected string
	}{
		{"dist/**/*.jar => lib", "dist/a/b.jar", "lib/a/b.jar"},
		{"dist/app.jar => lib", "dist/app.jar", "lib/app.jar"},
		{"dist/app.jar", "dist/app.jar", "app.jar"},
		{"**/*.txt", "x/y.txt", "x/y.txt"},
		{"out/*.txt => .", "out/a.txt", "a.txt"},
	}
	for _, test := range tests {
		rule, err := ParseArtifactRule(test.rule)
		require.NoError(t, err)
		match, err := rule.Matches(test.path)
		require.NoError(t, err)
		require.True(t, match, test.rule)
		require.Equal(t, test.expected, rule.TargetPath(test.path), test.rule)
	}
}

func TestArtifactRulePublishPath(t *testing.T) {
	tests := []struct {
		rule     string
		path     string
		expected string
	}{
		{"out/**", "out/app", "out/app"},
		{"out/app", "out/app", "out/app"},
		{"out/** => dist", "out/lib/util.so", "dist/lib/util.so"},
		{"out/*.txt => .", "out/a.txt", "a.txt"},
	}
	for _, test := range tests {
		rule, err := ParseArtifactRule(test.rule)
		require.NoError(t, err)
		require.Equal(t, test.expected, rule.PublishPath(test.path), test.rule)
	}
}

func TestArtifactRulesExcluded(t *testing.T) {
	rules, err := ParseArtifactRules("build/**\n-:build/**/*.tmp")
	require.NoError(t, err)
	excluded, err := rules.Excluded("build/a/b.tmp")
	require.NoError(t, err)
	require.True(t, excluded)
	excluded, err = rules.Excluded("build/a/b.txt")
	require.NoError(t, err)
	require.False(t, excluded)
}

func TestArtifactRulesString(t *testing.T) {
	rules, err := ParseArtifactRules("a/** => b, -:a/*.log")
	require.NoError(t, err)
	require.Equal(t, "a/** => b\n-:a/*.log", rules.String())
}
