// Package batch runs YAML-configured lists of data pulls sequentially.
package batch

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jpazvd/wb-api-repo/pkg/query"
)

// Job is one configured data pull.
type Job struct {
	Name       string     `yaml:"name"`
	Indicators StringList `yaml:"indicators"`
	Countries  StringList `yaml:"countries"`
	Date       string     `yaml:"date"`
	Long       bool       `yaml:"long"`
	Out        string     `yaml:"out"`
}

// Validate reports whether the job can run at all. Filter-level validation
// (date syntax, code content) happens later in the query builder.
func (j Job) Validate() error {
	if len(j.Indicators) == 0 {
		return errors.New("indicators required")
	}
	if strings.TrimSpace(j.Out) == "" {
		return errors.New("out required")
	}
	return nil
}

// Filter builds the job's data filter.
func (j Job) Filter() query.DataFilter {
	return query.DataFilter{
		Indicators: j.Indicators,
		Countries:  j.Countries,
		Date:       j.Date,
	}
}

// Config is the top-level batch file.
type Config struct {
	Jobs []Job `yaml:"jobs"`
}

// Load reads and parses a batch config file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

// Parse decodes batch config YAML.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	for i := range cfg.Jobs {
		if strings.TrimSpace(cfg.Jobs[i].Name) == "" {
			cfg.Jobs[i].Name = "unnamed"
		}
	}
	return &cfg, nil
}

// StringList accepts either a YAML sequence or a single comma-separated
// scalar, so configs can say `countries: BRA,IND` or list them out.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var raw string
		if err := value.Decode(&raw); err != nil {
			return err
		}
		*s = query.SplitList(raw)
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*s = list
		return nil
	default:
		return fmt.Errorf("line %d: expected string or list", value.Line)
	}
}
