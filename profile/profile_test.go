package profile

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinsRegistered(t *testing.T) {
	for _, vendor := range []string{"ios", "ciscoxr", "cisconx", "junos", "aruba", "brocade", "hp"} {
		p, err := Lookup(vendor)
		require.NoError(t, err, vendor)
		assert.NoError(t, p.Validate(), vendor)
	}
}

func TestLookupUnknownVendor(t *testing.T) {
	_, err := Lookup("carrierpigeon")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not implemented")
}

func TestNamesSorted(t *testing.T) {
	names := Names()
	assert.Contains(t, names, "ios")
	assert.Contains(t, names, "junos")
	for i := 1; i < len(names); i++ {
		assert.LessOrEqual(t, names[i-1], names[i])
	}
}

// Each state's prompt must identify its own state unambiguously for the
// prompts a dialect actually produces. Vendor text is messy, so this is
// checked against representative prompt lines rather than guaranteed at
// runtime.
func TestIosPromptsDoNotOverlap(t *testing.T) {
	p, err := Lookup("ios")
	require.NoError(t, err)

	samples := map[string]string{
		"exec":      "Router>",
		"enable":    "Router#",
		"configure": "Router(config)#",
	}
	for stateName, line := range samples {
		for _, s := range p.States {
			matched := s.Prompt.MatchString(line)
			if s.Name == stateName {
				assert.True(t, matched, "%s prompt should match %q", s.Name, line)
			} else {
				assert.False(t, matched, "%s prompt must not match %q", s.Name, line)
			}
		}
	}
}

func TestIosErrorMatcher(t *testing.T) {
	p, err := Lookup("ios")
	require.NoError(t, err)
	assert.True(t, p.Error.MatchString("% Invalid input detected at '^' marker."))
	assert.True(t, p.Error.MatchString("% Incomplete command."))
	assert.False(t, p.Error.MatchString("Cisco IOS Software, Version 15.2"))
	assert.False(t, p.Error.MatchString("Router#"))
}

func TestJunosErrorMatcher(t *testing.T) {
	p, err := Lookup("junos")
	require.NoError(t, err)
	assert.True(t, p.Error.MatchString("error: configuration check-out failed"))
	assert.True(t, p.Error.MatchString("syntax error, expecting <command>"))
	assert.False(t, p.Error.MatchString("commit complete"))
}

func TestPathTo(t *testing.T) {
	p, err := Lookup("ios")
	require.NoError(t, err)

	path, err := p.PathTo("configure")
	require.NoError(t, err)
	require.Len(t, path, 2)
	assert.Equal(t, "enable", path[0].To)
	assert.Equal(t, "configure", path[1].To)

	path, err = p.PathTo("exec")
	require.NoError(t, err)
	assert.Empty(t, path)

	_, err = p.PathTo("nonsense")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	prompt := regexp.MustCompile(`# $`)

	good := &Profile{
		Name:         "v",
		States:       []State{{Name: "a", Prompt: prompt}, {Name: "b", Prompt: prompt}},
		Transitions:  []Transition{{To: "b", Command: "go"}},
		CommandState: "a",
		ConfigState:  "b",
	}
	assert.NoError(t, good.Validate())

	noPrompt := &Profile{
		Name:         "v",
		States:       []State{{Name: "a"}},
		CommandState: "a",
		ConfigState:  "a",
	}
	assert.Error(t, noPrompt.Validate())

	wrongTarget := &Profile{
		Name:         "v",
		States:       []State{{Name: "a", Prompt: prompt}, {Name: "b", Prompt: prompt}},
		Transitions:  []Transition{{To: "elsewhere", Command: "go"}},
		CommandState: "a",
		ConfigState:  "b",
	}
	assert.Error(t, wrongTarget.Validate())

	missingGoal := &Profile{
		Name:         "v",
		States:       []State{{Name: "a", Prompt: prompt}},
		CommandState: "a",
		ConfigState:  "zz",
	}
	assert.Error(t, missingGoal.Validate())
}
