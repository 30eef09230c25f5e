package prompt

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

//go:embed calcaro.toml
var defaultScenario []byte

// Scenario is the persona and behavior script of a chatbot.
type Scenario struct {
	Name     string    `json:"name" toml:"name" yaml:"name"`
	Persona  string    `json:"persona" toml:"persona" yaml:"persona"`
	Focus    string    `json:"focus" toml:"focus" yaml:"focus"`
	Patterns []Pattern `json:"patterns" toml:"patterns" yaml:"patterns"`
	Events   []Event   `json:"events" toml:"events" yaml:"events"`
}

// Validate checks that the scenario can produce a usable prompt.
func (s Scenario) Validate() error {
	var errs []error
	if strings.TrimSpace(s.Persona) == "" {
		errs = append(errs, errors.New("persona is required"))
	}
	if strings.TrimSpace(s.Focus) == "" {
		errs = append(errs, errors.New("focus is required"))
	}
	for i, p := range s.Patterns {
		if strings.TrimSpace(p.Name) == "" {
			errs = append(errs, fmt.Errorf("pattern %d: name is required", i))
		}
	}
	for i, e := range s.Events {
		if strings.TrimSpace(e.Name) == "" {
			errs = append(errs, fmt.Errorf("event %d: name is required", i))
		}
	}
	return errors.Join(errs...)
}

// DefaultScenario returns the built-in car dealer scenario.
func DefaultScenario() Scenario {
	s, err := ParseScenario(defaultScenario, "toml")
	if err != nil {
		panic(fmt.Sprintf("embedded scenario: %v", err))
	}
	return s
}

// LoadScenario reads a scenario file. The format follows the extension:
// .toml, .yaml or .yml.
func LoadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("read scenario: %w", err)
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	s, err := ParseScenario(data, format)
	if err != nil {
		return Scenario{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseScenario decodes and validates a scenario in the given format.
func ParseScenario(data []byte, format string) (Scenario, error) {
	var s Scenario
	switch format {
	case "toml":
		if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
			return Scenario{}, fmt.Errorf("parse toml: %w", err)
		}
	case "yaml", "yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&s); err != nil {
			return Scenario{}, fmt.Errorf("parse yaml: %w", err)
		}
	default:
		return Scenario{}, fmt.Errorf("unsupported scenario format %q", format)
	}
	if err := s.Validate(); err != nil {
		return Scenario{}, fmt.Errorf("invalid scenario: %w", err)
	}
	return s, nil
}
