// Package ldpush distributes configuration payloads or ad-hoc commands to
// fleets of network devices over interactive SSH or telnet sessions, across
// vendor cli dialects, and reports per-device success, failure and captured
// output.
package ldpush

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/ldpush/config"
	"github.com/google/ldpush/dispatch"
	"github.com/google/ldpush/profile"
	"github.com/google/ldpush/schema"
	"github.com/google/ldpush/transport"
)

// Run pushes every job using the named vendor dialect and the given
// connection method, and blocks until the aggregate is complete. Completion
// events are streamed on events when non-nil.
func Run(ctx context.Context, vendor string, method transport.Method, jobs []schema.Job,
	creds schema.Credentials, opts config.Options, events chan<- dispatch.Event) (*dispatch.Aggregate, error) {
	p, err := profile.Lookup(vendor)
	if err != nil {
		return nil, err
	}
	factory := func() schema.Transport {
		return transport.New(method, transport.Options{More: p.More})
	}
	return dispatch.New(p, creds, opts, factory).Run(ctx, jobs, events)
}

// JobsForTargets builds one job per named target, all carrying the same
// payload. The suffix, when set, is appended to every target name.
func JobsForTargets(targets []string, suffix, vendor string, payload schema.Payload) []schema.Job {
	jobs := make([]schema.Job, 0, len(targets))
	for _, t := range targets {
		jobs = append(jobs, schema.Job{
			Target:  schema.Target{Host: t + suffix},
			Payload: payload,
			Vendor:  vendor,
		})
	}
	return jobs
}

// JobsFromFiles derives one job per configuration file, the target device
// being the file's base name plus the suffix. This covers fleets where each
// device has its own pre-generated configlet named after it.
func JobsFromFiles(files []string, suffix, vendor string) ([]schema.Job, error) {
	jobs := make([]schema.Job, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", f, err)
		}
		host := filepath.Base(f) + suffix
		jobs = append(jobs, schema.Job{
			Target:  schema.Target{Host: host, Label: host},
			Payload: schema.ConfigPayload(ConfigLines(string(data))),
			Vendor:  vendor,
		})
	}
	return jobs, nil
}

// JoinFiles reads and concatenates the given files into one configlet.
func JoinFiles(files []string) (string, error) {
	var b strings.Builder
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return "", fmt.Errorf("reading config %s: %w", f, err)
		}
		b.Write(data)
	}
	return b.String(), nil
}

// ConfigLines splits a configlet into the lines actually pushed, dropping
// blanks; devices answer a bare newline with another prompt, which would
// double-count against the expect accounting.
func ConfigLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}
