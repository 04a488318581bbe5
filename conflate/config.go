package conflate

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// InputConfig names one GeoJSON input file and the provenance tag applied
// to footprints that do not carry their own source property.
type InputConfig struct {
	Path   string `yaml:"path" json:"path"`
	Source string `yaml:"source,omitempty" json:"source,omitempty"`
}

// RunConfig is the YAML run configuration consumed by the CLI. Options
// left out of the file keep their defaults; CLI flags override file
// values.
type RunConfig struct {
	Inputs  []InputConfig `yaml:"inputs" json:"inputs"`
	Output  string        `yaml:"output,omitempty" json:"output,omitempty"`
	Options Options       `yaml:"options" json:"options"`
}

// LoadRunConfig loads and validates a run configuration from a YAML file.
func LoadRunConfig(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := RunConfig{Options: DefaultOptions()}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	for i, in := range config.Inputs {
		if in.Path == "" {
			return nil, fmt.Errorf("inputs[%d].path is required", i)
		}
	}
	if err := config.Options.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}
