package profile

import "regexp"

// The built-in vendor set mirrors the dialects this tool has been used
// against. Prompt patterns match whole lines: the session reader emits the
// unterminated prompt as its own line, so anchors are safe.

var (
	passwordPrompt = regexp.MustCompile(`[Pp]assword: ?$`)
	ciscoMore      = regexp.MustCompile(`--More--`)
)

func init() {
	Register(ios())
	Register(ciscoxr())
	Register(cisconx())
	Register(junos())
	Register(aruba())
	Register(brocade())
	Register(hp())
}

func ios() *Profile {
	return &Profile{
		Name: "ios",
		States: []State{
			{Name: "exec", Prompt: regexp.MustCompile(`^[\w.-]+> ?$`)},
			{Name: "enable", Prompt: regexp.MustCompile(`^[\w.-]+# ?$`)},
			{Name: "configure", Prompt: regexp.MustCompile(`^[\w.-]+\(config[\w-]*\)# ?$`)},
		},
		Transitions: []Transition{
			{To: "enable", Command: "enable", SecretPrompt: passwordPrompt, Secret: SecretEnable},
			{To: "configure", Command: "configure terminal"},
		},
		Error:        regexp.MustCompile(`^% |Invalid input detected`),
		More:         []*regexp.Regexp{ciscoMore},
		InitCommands: []string{"terminal length 0"},
		CommandState: "enable",
		ConfigState:  "configure",
		SaveCommand:  "write memory",
		ExitConfig:   "end",
	}
}

func ciscoxr() *Profile {
	return &Profile{
		Name: "ciscoxr",
		States: []State{
			{Name: "exec", Prompt: regexp.MustCompile(`^[\w./:-]+# ?$`)},
			{Name: "configure", Prompt: regexp.MustCompile(`^[\w./:-]+\(config[\w-]*\)# ?$`)},
		},
		Transitions: []Transition{
			{To: "configure", Command: "configure terminal"},
		},
		Error:        regexp.MustCompile(`^% |^!! SYNTAX/AUTHORIZATION ERROR`),
		More:         []*regexp.Regexp{ciscoMore},
		InitCommands: []string{"terminal length 0"},
		CommandState: "exec",
		ConfigState:  "configure",
		SaveCommand:  "commit",
		SaveInConfig: true,
		ExitConfig:   "end",
	}
}

func cisconx() *Profile {
	return &Profile{
		Name: "cisconx",
		States: []State{
			{Name: "exec", Prompt: regexp.MustCompile(`^[\w.-]+# ?$`)},
			{Name: "configure", Prompt: regexp.MustCompile(`^[\w.-]+\(config[\w-]*\)# ?$`)},
		},
		Transitions: []Transition{
			{To: "configure", Command: "configure terminal"},
		},
		Error:        regexp.MustCompile(`^% |Invalid command`),
		More:         []*regexp.Regexp{ciscoMore},
		InitCommands: []string{"terminal length 0"},
		CommandState: "exec",
		ConfigState:  "configure",
		SaveCommand:  "copy running-config startup-config",
		ExitConfig:   "end",
	}
}

func junos() *Profile {
	return &Profile{
		Name: "junos",
		States: []State{
			{Name: "operational", Prompt: regexp.MustCompile(`^[\w@.-]+> ?$`)},
			{Name: "configure", Prompt: regexp.MustCompile(`^[\w@.-]+# ?$`)},
		},
		Transitions: []Transition{
			{To: "configure", Command: "configure"},
		},
		Error:        regexp.MustCompile(`^(error:|syntax error|unknown command)`),
		More:         []*regexp.Regexp{regexp.MustCompile(`---\(more( \d+%)?\)---`)},
		InitCommands: []string{"set cli screen-length 0"},
		CommandState: "operational",
		ConfigState:  "configure",
		SaveCommand:  "commit",
		SaveInConfig: true,
		ExitConfig:   "exit configuration-mode",
	}
}

func aruba() *Profile {
	return &Profile{
		Name: "aruba",
		States: []State{
			{Name: "exec", Prompt: regexp.MustCompile(`^\([\w.-]+\) [>#] ?$`)},
			{Name: "enable", Prompt: regexp.MustCompile(`^\([\w.-]+\) # ?$`)},
			{Name: "configure", Prompt: regexp.MustCompile(`^\([\w.-]+\) \(config[\w-]*\) # ?$`)},
		},
		Transitions: []Transition{
			{To: "enable", Command: "enable", SecretPrompt: passwordPrompt, Secret: SecretEnable},
			{To: "configure", Command: "configure terminal"},
		},
		Error:        regexp.MustCompile(`^% (Invalid|Parse error)`),
		More:         []*regexp.Regexp{ciscoMore},
		InitCommands: []string{"no paging"},
		CommandState: "enable",
		ConfigState:  "configure",
		SaveCommand:  "write memory",
		ExitConfig:   "end",
	}
}

func brocade() *Profile {
	return &Profile{
		Name: "brocade",
		States: []State{
			{Name: "exec", Prompt: regexp.MustCompile(`^[\w.-]+> ?$`)},
			{Name: "enable", Prompt: regexp.MustCompile(`^[\w.-]+# ?$`)},
			{Name: "configure", Prompt: regexp.MustCompile(`^[\w.-]+\(config[\w-]*\)# ?$`)},
		},
		Transitions: []Transition{
			{To: "enable", Command: "enable", SecretPrompt: passwordPrompt, Secret: SecretEnable},
			{To: "configure", Command: "configure terminal"},
		},
		Error:        regexp.MustCompile(`^Invalid input|^Error - `),
		More:         []*regexp.Regexp{ciscoMore},
		InitCommands: []string{"skip-page-display"},
		CommandState: "enable",
		ConfigState:  "configure",
		SaveCommand:  "write memory",
		ExitConfig:   "end",
	}
}

func hp() *Profile {
	return &Profile{
		Name: "hp",
		States: []State{
			{Name: "exec", Prompt: regexp.MustCompile(`^[\w.-]+> ?$`)},
			{Name: "enable", Prompt: regexp.MustCompile(`^[\w.-]+# ?$`)},
			{Name: "configure", Prompt: regexp.MustCompile(`^[\w.-]+\(config[\w-]*\)# ?$`)},
		},
		Transitions: []Transition{
			{To: "enable", Command: "enable", SecretPrompt: passwordPrompt, Secret: SecretEnable},
			{To: "configure", Command: "configure terminal"},
		},
		Error:        regexp.MustCompile(`^Invalid input:`),
		More:         []*regexp.Regexp{regexp.MustCompile(`-- MORE --`)},
		InitCommands: []string{"no page"},
		CommandState: "enable",
		ConfigState:  "configure",
		SaveCommand:  "write memory",
		ExitConfig:   "end",
	}
}
