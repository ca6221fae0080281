package schema

import (
	"context"
	"regexp"
	"time"
)

type EventType int
type PayloadKind int
type Outcome int
type LineStatus int

const (
	Stdout EventType = iota
	Stderr
)

const (
	// Command payloads run a single command and capture its response.
	Command PayloadKind = iota
	// Config payloads push an ordered sequence of configuration lines.
	Config
)

const (
	Success Outcome = iota
	DeviceError
	Timeout
	TransportFailure
	AuthFailure
	Canceled
)

const (
	LineNotSent LineStatus = iota
	LineAccepted
	LineRejected
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case DeviceError:
		return "device-error"
	case Timeout:
		return "timeout"
	case TransportFailure:
		return "transport-error"
	case AuthFailure:
		return "auth-error"
	case Canceled:
		return "canceled"
	}
	return "unknown"
}

// Transient reports whether a fresh attempt against the same target could
// plausibly succeed. Rejected commands and bad credentials are not transient:
// the device will answer the same way next time.
func (o Outcome) Transient() bool {
	return o == Timeout || o == TransportFailure
}

// MessageEvent is one line of raw output received from a device.
type MessageEvent struct {
	Source  string
	Message string
	Dir     EventType
	Time    time.Time
}

// Credentials are used fleet-wide unless a Target carries an override.
type Credentials struct {
	Username       string
	Password       string
	EnablePassword string
	KeyFile        string
}

// Target identifies one device to push to.
type Target struct {
	Host  string
	Port  int
	Label string
	// Credentials overrides the fleet-wide credentials when set.
	Credentials *Credentials
}

// Name returns the identity used to key results: the label when one was
// derived (for example from a config filename), otherwise the host.
func (t Target) Name() string {
	if t.Label != "" {
		return t.Label
	}
	return t.Host
}

type Payload struct {
	Kind    PayloadKind
	Command string
	Lines   []string
}

func CommandPayload(command string) Payload {
	return Payload{Kind: Command, Command: command}
}

func ConfigPayload(lines []string) Payload {
	return Payload{Kind: Config, Lines: lines}
}

// Job is one unit of work: deliver Payload to Target speaking the Vendor
// dialect. Jobs are immutable and consumed exactly once.
type Job struct {
	Target  Target
	Payload Payload
	Vendor  string
}

// LineResult records what happened to a single pushed configuration line.
type LineResult struct {
	Line     string
	Status   LineStatus
	Response string
}

// Result is the outcome record for one Job. Exactly one is produced per
// target, whatever happened to the session.
type Result struct {
	Target   Target
	Outcome  Outcome
	Output   string
	Lines    []LineResult
	Duration time.Duration
	Attempts int
	Note     string
	Err      error
}

// Match is what Expect returns: which pattern fired and every line consumed
// up to and including the matching one.
type Match struct {
	Index int
	Lines []string
}

// Transport is the byte-level interactive channel to one device. Connect
// performs the full connect+login handshake; Expect blocks until one of the
// supplied patterns matches the accumulated output. Close is idempotent and
// safe on every exit path.
type Transport interface {
	Connect(ctx context.Context, target Target, creds Credentials, timeout time.Duration) error
	Send(line string) error
	Expect(ctx context.Context, patterns []*regexp.Regexp, timeout time.Duration) (Match, error)
	Close() error
}

type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warning(args ...interface{})
	Warningf(format string, args ...interface{})
	Critical(args ...interface{})
	Criticalf(format string, args ...interface{})
}
