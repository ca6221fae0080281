// Package session drives one interactive device session through login,
// privilege escalation, configuration mode, payload submission and teardown,
// steered entirely by a vendor profile. One Driver serves exactly one job
// attempt and is thrown away afterwards; a retry gets a fresh driver and a
// fresh transport.
package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/ldpush/logger"
	"github.com/google/ldpush/profile"
	"github.com/google/ldpush/schema"
)

var log schema.Logger

func init() {
	log = logger.Log
}

type Options struct {
	ConnectTimeout time.Duration
	ExpectTimeout  time.Duration
	// Canary walks the whole session, configuration mode included, but
	// never submits payload lines or saves.
	Canary bool
}

type Driver struct {
	profile    *profile.Profile
	tr         schema.Transport
	opts       Options
	transcript []string
}

func New(p *profile.Profile, tr schema.Transport, opts Options) *Driver {
	return &Driver{profile: p, tr: tr, opts: opts}
}

// Run executes one job against one device and always produces a result, on
// every failure path included. The transport is closed before returning.
func (d *Driver) Run(ctx context.Context, job schema.Job, creds schema.Credentials) schema.Result {
	started := time.Now()
	if job.Target.Credentials != nil {
		creds = *job.Target.Credentials
	}

	if err := d.tr.Connect(ctx, job.Target, creds, d.opts.ConnectTimeout); err != nil {
		return d.finish(job, nil, "", err, started)
	}
	defer d.tr.Close()

	lines, note, err := d.converse(ctx, job, creds)
	return d.finish(job, lines, note, err, started)
}

// converse is the state machine proper: locate the current state, escalate
// to where the payload needs to be, submit, and save.
func (d *Driver) converse(ctx context.Context, job schema.Job, creds schema.Credentials) ([]schema.LineResult, string, error) {
	cur, err := d.locate(ctx)
	if err != nil {
		return nil, "", err
	}

	cmdIdx, cfgIdx, err := d.goalIndexes()
	if err != nil {
		return nil, "", err
	}

	// Escalate to the command state and quiet the terminal there.
	if err := d.walk(ctx, cur, cmdIdx, creds); err != nil {
		return nil, "", err
	}
	for _, init := range d.profile.InitCommands {
		if err := d.exchange(ctx, init, d.profile.States[cmdIdx].Prompt); err != nil {
			return nil, "", err
		}
	}

	if job.Payload.Kind == schema.Command {
		if d.opts.Canary {
			return nil, "canary: command not executed", nil
		}
		err := d.exchange(ctx, job.Payload.Command, d.profile.States[cmdIdx].Prompt)
		return nil, "", err
	}

	// Configuration push needs configuration mode.
	if err := d.walk(ctx, cmdIdx, cfgIdx, creds); err != nil {
		return nil, "", err
	}

	var lines []schema.LineResult
	if d.opts.Canary {
		lines = notSent(job.Payload.Lines)
	} else {
		var err error
		lines, err = d.push(ctx, job.Payload.Lines, d.profile.States[cfgIdx].Prompt)
		if err != nil {
			return lines, "", err
		}
	}

	note, err := d.saveAndLeave(ctx, cmdIdx, cfgIdx)
	if err != nil {
		return lines, note, err
	}
	if d.opts.Canary {
		note = "canary: configuration not applied"
	}
	return lines, note, nil
}

// locate elicits a fresh prompt and matches it against every declared state,
// returning the index of the state the session landed in after login. Some
// accounts log straight into privileged mode, so assuming the first declared
// state would wedge the walk.
func (d *Driver) locate(ctx context.Context) (int, error) {
	if err := d.tr.Send(""); err != nil {
		return 0, err
	}
	prompts := make([]*regexp.Regexp, len(d.profile.States))
	for i, s := range d.profile.States {
		prompts[i] = s.Prompt
	}
	m, err := d.expect(ctx, prompts)
	if err != nil {
		return 0, err
	}
	log.Debugf("session located in state %q", d.profile.States[m.Index].Name)
	return m.Index, nil
}

func (d *Driver) goalIndexes() (cmdIdx, cfgIdx int, err error) {
	cmdIdx, cfgIdx = -1, -1
	for i, s := range d.profile.States {
		if s.Name == d.profile.CommandState {
			cmdIdx = i
		}
		if s.Name == d.profile.ConfigState {
			cfgIdx = i
		}
	}
	if cmdIdx < 0 || cfgIdx < 0 {
		return 0, 0, fmt.Errorf("profile %s: goal states not declared", d.profile.Name)
	}
	return cmdIdx, cfgIdx, nil
}

// walk runs the profile transitions from state index `from` up to `to`.
// A failed transition is fatal for the job: there is no safe way to replay
// half an escalation on a live session.
func (d *Driver) walk(ctx context.Context, from, to int, creds schema.Credentials) error {
	for i := from; i < to; i++ {
		t := d.profile.Transitions[i]
		if err := d.transition(ctx, t, d.profile.States[i+1].Prompt, creds); err != nil {
			return fmt.Errorf("entering %s: %w", t.To, err)
		}
	}
	return nil
}

func (d *Driver) transition(ctx context.Context, t profile.Transition, destPrompt *regexp.Regexp, creds schema.Credentials) error {
	if err := d.tr.Send(t.Command); err != nil {
		return err
	}
	if t.SecretPrompt != nil {
		m, err := d.expect(ctx, []*regexp.Regexp{t.SecretPrompt, destPrompt})
		if err != nil {
			return d.asReject(err, t.Command)
		}
		// Auto-privilege accounts skip the password prompt and land on the
		// destination prompt directly.
		if m.Index == 1 {
			return nil
		}
		secret := ""
		if t.Secret == profile.SecretEnable {
			secret = creds.EnablePassword
			if secret == "" {
				secret = creds.Password
			}
		}
		if err := d.tr.Send(secret); err != nil {
			return err
		}
	}
	if _, err := d.expect(ctx, []*regexp.Regexp{destPrompt}); err != nil {
		return d.asReject(err, t.Command)
	}
	return nil
}

// exchange sends one line and waits for the prompt to come back.
func (d *Driver) exchange(ctx context.Context, command string, prompt *regexp.Regexp) error {
	if err := d.tr.Send(command); err != nil {
		return err
	}
	if _, err := d.expect(ctx, []*regexp.Regexp{prompt}); err != nil {
		return d.asReject(err, command)
	}
	return nil
}

// push submits configuration lines one at a time, failing fast on the first
// rejection: remaining lines are never sent, and nothing is rolled back.
func (d *Driver) push(ctx context.Context, payload []string, prompt *regexp.Regexp) ([]schema.LineResult, error) {
	lines := notSent(payload)
	for i, line := range payload {
		if err := d.tr.Send(line); err != nil {
			return lines, err
		}
		m, err := d.expect(ctx, []*regexp.Regexp{prompt})
		if err != nil {
			var rej *schema.RejectError
			if errors.As(err, &rej) {
				rej.Command = line
				rej.Line = i
				lines[i].Status = schema.LineRejected
				lines[i].Response = rej.Response
			}
			return lines, err
		}
		lines[i].Status = schema.LineAccepted
		lines[i].Response = strings.Join(m.Lines, "\n")
	}
	return lines, nil
}

// saveAndLeave persists accepted configuration and returns to the command
// state. Failures here are reported but the push stands: the device already
// accepted every line. The caller downgrades the outcome via the error.
func (d *Driver) saveAndLeave(ctx context.Context, cmdIdx, cfgIdx int) (string, error) {
	cmdPrompt := d.profile.States[cmdIdx].Prompt
	cfgPrompt := d.profile.States[cfgIdx].Prompt
	save := d.profile.SaveCommand
	if d.opts.Canary {
		save = ""
	}

	if save != "" && d.profile.SaveInConfig {
		if err := d.exchange(ctx, save, cfgPrompt); err != nil {
			return fmt.Sprintf("configuration accepted but %q failed", save), err
		}
	}
	if d.profile.ExitConfig != "" {
		if err := d.exchange(ctx, d.profile.ExitConfig, cmdPrompt); err != nil {
			return "configuration accepted but leaving config mode failed", err
		}
	}
	if save != "" && !d.profile.SaveInConfig {
		if err := d.exchange(ctx, save, cmdPrompt); err != nil {
			return fmt.Sprintf("configuration accepted but %q failed", save), err
		}
	}
	return "", nil
}

// expect waits on the given patterns with the profile's error matcher always
// in play; an error-matcher hit comes back as a RejectError.
func (d *Driver) expect(ctx context.Context, patterns []*regexp.Regexp) (schema.Match, error) {
	pats := patterns
	errIdx := -1
	if d.profile.Error != nil {
		errIdx = len(pats)
		pats = append(append([]*regexp.Regexp{}, pats...), d.profile.Error)
	}
	m, err := d.tr.Expect(ctx, pats, d.opts.ExpectTimeout)
	d.transcript = append(d.transcript, m.Lines...)
	if err != nil {
		return m, err
	}
	if m.Index == errIdx {
		return m, &schema.RejectError{Response: lastLine(m.Lines), Line: -1}
	}
	return m, nil
}

func (d *Driver) asReject(err error, command string) error {
	var rej *schema.RejectError
	if errors.As(err, &rej) {
		rej.Command = command
	}
	return err
}

func (d *Driver) finish(job schema.Job, lines []schema.LineResult, note string, err error, started time.Time) schema.Result {
	res := schema.Result{
		Target:   job.Target,
		Outcome:  schema.OutcomeFor(err),
		Output:   strings.Join(d.transcript, "\n"),
		Lines:    lines,
		Duration: time.Since(started),
		Note:     note,
		Err:      err,
	}
	// A failed save after accepted lines is a device condition, not a
	// transient one: retrying would re-push configuration that already took.
	if err != nil && note != "" && res.Outcome != schema.Canceled {
		res.Outcome = schema.DeviceError
	}
	if err != nil {
		log.Warningf("%s: %s: %v", job.Target.Name(), res.Outcome, err)
	}
	return res
}

func notSent(payload []string) []schema.LineResult {
	lines := make([]schema.LineResult, len(payload))
	for i, l := range payload {
		lines[i] = schema.LineResult{Line: l, Status: schema.LineNotSent}
	}
	return lines
}

func lastLine(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}
