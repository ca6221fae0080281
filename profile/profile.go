// Package profile describes vendor command-line dialects as data: the prompt
// for each session state, the commands that move between states, and the
// patterns that identify a rejected command. A single session driver walks
// any dialect by reading its profile.
package profile

import (
	"fmt"
	"regexp"
	"sort"
	"sync"
)

type SecretKind int

const (
	SecretNone SecretKind = iota
	// SecretEnable injects the enable password after the secret prompt.
	SecretEnable
)

// State is one session state and the prompt that announces it.
type State struct {
	Name   string
	Prompt *regexp.Regexp
}

// Transition moves the session into state To. When SecretPrompt is set the
// device asks for a secret mid-transition (an enable password prompt) and the
// driver answers it before waiting for the destination prompt.
type Transition struct {
	To           string
	Command      string
	SecretPrompt *regexp.Regexp
	Secret       SecretKind
}

// Profile is the declarative table for one vendor dialect. States are ordered
// from the post-login state to the deepest one; Transitions[i] moves
// States[i] to States[i+1].
type Profile struct {
	Name        string
	States      []State
	Transitions []Transition

	// Error matches a line carrying a vendor rejection, e.g. "% Invalid".
	Error *regexp.Regexp
	// More matches pagination continuation prompts answered with a space.
	More []*regexp.Regexp

	// InitCommands are sent once the command state is reached, before any
	// payload ("terminal length 0" and friends).
	InitCommands []string

	// CommandState suffices for command payloads; ConfigState is the
	// additional depth needed for configuration pushes.
	CommandState string
	ConfigState  string

	// SaveCommand persists accepted configuration, best effort. Some
	// dialects commit inside configuration mode (junos), others save after
	// leaving it (ios "write memory").
	SaveCommand  string
	SaveInConfig bool
	// ExitConfig returns from ConfigState to CommandState.
	ExitConfig string
}

// State looks up a declared state by name.
func (p *Profile) State(name string) (State, bool) {
	for _, s := range p.States {
		if s.Name == name {
			return s, true
		}
	}
	return State{}, false
}

// PathTo returns the transitions, in order, from the initial state up to and
// including the one entering the named state. An empty slice means the
// initial state already is the goal.
func (p *Profile) PathTo(state string) ([]Transition, error) {
	if len(p.States) > 0 && p.States[0].Name == state {
		return nil, nil
	}
	for i, t := range p.Transitions {
		if t.To == state {
			return p.Transitions[:i+1], nil
		}
	}
	return nil, fmt.Errorf("profile %s: no path to state %q", p.Name, state)
}

// Validate checks the structural invariants: every transition lands on a
// declared state, every state has a prompt, and the command/config states
// exist.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile has no name")
	}
	if len(p.States) == 0 {
		return fmt.Errorf("profile %s declares no states", p.Name)
	}
	seen := make(map[string]bool, len(p.States))
	for _, s := range p.States {
		if s.Prompt == nil {
			return fmt.Errorf("profile %s: state %q has no prompt", p.Name, s.Name)
		}
		if seen[s.Name] {
			return fmt.Errorf("profile %s: duplicate state %q", p.Name, s.Name)
		}
		seen[s.Name] = true
	}
	if len(p.Transitions) != len(p.States)-1 {
		return fmt.Errorf("profile %s: %d transitions for %d states",
			p.Name, len(p.Transitions), len(p.States))
	}
	for i, t := range p.Transitions {
		if t.To != p.States[i+1].Name {
			return fmt.Errorf("profile %s: transition %d targets %q, want %q",
				p.Name, i, t.To, p.States[i+1].Name)
		}
	}
	if _, ok := p.State(p.CommandState); !ok {
		return fmt.Errorf("profile %s: command state %q not declared", p.Name, p.CommandState)
	}
	if _, ok := p.State(p.ConfigState); !ok {
		return fmt.Errorf("profile %s: config state %q not declared", p.Name, p.ConfigState)
	}
	return nil
}

var (
	regMut   sync.RWMutex
	registry = make(map[string]*Profile)
)

// Register adds a profile to the lookup table, replacing any previous entry
// with the same name. It panics on an invalid profile so a bad built-in or
// descriptor fails loudly at startup.
func Register(p *Profile) {
	if err := p.Validate(); err != nil {
		panic(err)
	}
	regMut.Lock()
	defer regMut.Unlock()
	registry[p.Name] = p
}

// Lookup returns the profile for a vendor name.
func Lookup(name string) (*Profile, error) {
	regMut.RLock()
	defer regMut.RUnlock()
	p, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("vendor %q is not implemented, known vendors: %v", name, names())
	}
	return p, nil
}

// Names lists the registered vendors, sorted.
func Names() []string {
	regMut.RLock()
	defer regMut.RUnlock()
	return names()
}

func names() []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
