package job

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type jobsFile struct {
	Jobs []jobEntry `yaml:"jobs"`
}

type jobEntry struct {
	ID         string      `yaml:"id"`
	Cmd        commandLine `yaml:"cmd"`
	TimeoutSec *int        `yaml:"timeout_sec"`
	Retries    *int        `yaml:"retries"`
}

// commandLine accepts either a YAML list of arguments or a single string
// that is split on whitespace.
type commandLine []string

func (c *commandLine) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*c = strings.Fields(value.Value)
		return nil
	case yaml.SequenceNode:
		var args []string
		if err := value.Decode(&args); err != nil {
			return err
		}
		*c = args
		return nil
	}
	return fmt.Errorf("line %d: cmd must be a string or a list of strings", value.Line)
}

func (e jobEntry) toJob() Job {
	j := Job{
		ID:             e.ID,
		Command:        []string(e.Cmd),
		TimeoutSeconds: DefaultTimeoutSeconds,
		MaxRetries:     DefaultMaxRetries,
	}
	if e.TimeoutSec != nil {
		j.TimeoutSeconds = *e.TimeoutSec
	}
	if e.Retries != nil {
		j.MaxRetries = *e.Retries
	}
	return j
}

// Load reads and validates the jobs file at path.
func Load(path string) ([]Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open jobs file: %w", err)
	}
	defer f.Close()

	jobs, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return jobs, nil
}

// Parse decodes a jobs document. Unknown keys are rejected.
func Parse(r io.Reader) ([]Job, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc jobsFile
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode jobs: %w", err)
	}

	jobs := make([]Job, 0, len(doc.Jobs))
	for _, e := range doc.Jobs {
		jobs = append(jobs, e.toJob())
	}
	if err := ValidateAll(jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}
