package repoconfig

import (
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// FileName is the name of the per-repository configuration file, which is
// looked for at the root of the repository.
const FileName = ".testbot.yml"

// Config represents the contents of a repository's .testbot.yml file.
type Config struct {
	// Enabled turns the bot on or off for the repository as a whole.
	Enabled bool `yaml:"enabled"`
	// TestGeneration enables the /patchpanda test command.
	TestGeneration bool `yaml:"test_generation"`
	// CoverageAnalysis enables coverage analysis on pull requests and the
	// /patchpanda coverage command.
	CoverageAnalysis bool `yaml:"coverage_analysis"`

	MaxTests       int `yaml:"max_tests"`
	TimeoutMinutes int `yaml:"timeout_minutes"`

	IncludePatterns []string `yaml:"include_patterns,omitempty"`
	ExcludePatterns []string `yaml:"exclude_patterns,omitempty"`

	TestFramework string `yaml:"test_framework,omitempty"`
	TestDirectory string `yaml:"test_directory,omitempty"`

	CoverageThreshold *float64 `yaml:"coverage_threshold,omitempty"`
	CoverageExclude   []string `yaml:"coverage_exclude,omitempty"`

	CustomSettings map[string]interface{} `yaml:"custom_settings,omitempty"`
}

// Default returns the configuration that applies to repositories that have no
// .testbot.yml file.
func Default() Config {
	return Config{
		Enabled:          true,
		TestGeneration:   true,
		CoverageAnalysis: true,
		MaxTests:         100,
		TimeoutMinutes:   30,
		TestDirectory:    "tests",
	}
}

// TestGenerationEnabled returns true if test generation may run.
func (c Config) TestGenerationEnabled() bool {
	return c.Enabled && c.TestGeneration
}

// CoverageAnalysisEnabled returns true if coverage analysis may run.
func (c Config) CoverageAnalysisEnabled() bool {
	return c.Enabled && c.CoverageAnalysis
}

// ValidationError lists everything that is wrong with a .testbot.yml file.
type ValidationError struct {
	Problems []string
}

func (v *ValidationError) Error() string {
	return fmt.Sprintf(
		"invalid %s: %s",
		FileName,
		strings.Join(v.Problems, "; "),
	)
}

// Parse decodes and validates the contents of a .testbot.yml file. Fields that
// are omitted take their default values. Unknown fields are rejected. An empty
// document yields the default configuration.
func Parse(data string) (Config, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(strings.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && err != io.EOF {
		var typeErr *yaml.TypeError
		if errors.As(err, &typeErr) {
			return Config{}, &ValidationError{Problems: typeErr.Errors}
		}
		return Config{}, &ValidationError{Problems: []string{err.Error()}}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that every setting is within its permitted range.
func (c Config) Validate() error {
	var problems []string
	if c.MaxTests < 1 || c.MaxTests > 1000 {
		problems = append(
			problems,
			fmt.Sprintf("max_tests must be between 1 and 1000; got %d", c.MaxTests),
		)
	}
	if c.TimeoutMinutes < 1 || c.TimeoutMinutes > 480 {
		problems = append(
			problems,
			fmt.Sprintf(
				"timeout_minutes must be between 1 and 480; got %d",
				c.TimeoutMinutes,
			),
		)
	}
	if c.CoverageThreshold != nil &&
		(*c.CoverageThreshold < 0 || *c.CoverageThreshold > 100) {
		problems = append(
			problems,
			fmt.Sprintf(
				"coverage_threshold must be between 0 and 100; got %g",
				*c.CoverageThreshold,
			),
		)
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
