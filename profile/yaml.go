package profile

import (
	"fmt"
	"io"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Descriptor is the on-disk form of a profile. Patterns are regexp source
// strings and are compiled on load.
type Descriptor struct {
	Name   string `yaml:"name"`
	States []struct {
		Name   string `yaml:"name"`
		Prompt string `yaml:"prompt"`
	} `yaml:"states"`
	Transitions []struct {
		To           string `yaml:"to"`
		Command      string `yaml:"command"`
		SecretPrompt string `yaml:"secret_prompt,omitempty"`
		Secret       string `yaml:"secret,omitempty"`
	} `yaml:"transitions"`
	Error        string   `yaml:"error"`
	More         []string `yaml:"more,omitempty"`
	InitCommands []string `yaml:"init_commands,omitempty"`
	CommandState string   `yaml:"command_state"`
	ConfigState  string   `yaml:"config_state"`
	SaveCommand  string   `yaml:"save_command,omitempty"`
	SaveInConfig bool     `yaml:"save_in_config,omitempty"`
	ExitConfig   string   `yaml:"exit_config,omitempty"`
}

// Load parses a YAML profile descriptor and compiles its patterns.
func Load(r io.Reader) (*Profile, error) {
	var d Descriptor
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("decoding profile descriptor: %w", err)
	}
	return d.compile()
}

// LoadFile reads, compiles and registers a profile descriptor from disk.
func LoadFile(path string) (*Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	p, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	Register(p)
	return p, nil
}

func (d Descriptor) compile() (*Profile, error) {
	p := &Profile{
		Name:         d.Name,
		InitCommands: d.InitCommands,
		CommandState: d.CommandState,
		ConfigState:  d.ConfigState,
		SaveCommand:  d.SaveCommand,
		SaveInConfig: d.SaveInConfig,
		ExitConfig:   d.ExitConfig,
	}
	for _, s := range d.States {
		prompt, err := regexp.Compile(s.Prompt)
		if err != nil {
			return nil, fmt.Errorf("state %q prompt: %w", s.Name, err)
		}
		p.States = append(p.States, State{Name: s.Name, Prompt: prompt})
	}
	for _, t := range d.Transitions {
		tr := Transition{To: t.To, Command: t.Command}
		if t.SecretPrompt != "" {
			sp, err := regexp.Compile(t.SecretPrompt)
			if err != nil {
				return nil, fmt.Errorf("transition to %q secret prompt: %w", t.To, err)
			}
			tr.SecretPrompt = sp
		}
		switch t.Secret {
		case "", "none":
		case "enable":
			tr.Secret = SecretEnable
		default:
			return nil, fmt.Errorf("transition to %q: unknown secret kind %q", t.To, t.Secret)
		}
		p.Transitions = append(p.Transitions, tr)
	}
	if d.Error != "" {
		e, err := regexp.Compile(d.Error)
		if err != nil {
			return nil, fmt.Errorf("error pattern: %w", err)
		}
		p.Error = e
	}
	for _, m := range d.More {
		re, err := regexp.Compile(m)
		if err != nil {
			return nil, fmt.Errorf("more pattern %q: %w", m, err)
		}
		p.More = append(p.More, re)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
