// Package transport implements the interactive channel to one device over
// SSH or telnet. The channel is unframed: responses are recognized by
// pattern-matching the accumulated output, never by message boundaries.
package transport

import (
	"context"
	"io"
	"regexp"
	"time"

	"github.com/google/ldpush/logger"
	"github.com/google/ldpush/pubsub"
	"github.com/google/ldpush/schema"
)

type Method int

const (
	SSH Method = iota
	Telnet
)

var log schema.Logger

func init() {
	log = logger.Log
}

// Options carries the dialect-specific scraps a channel needs that are not
// part of the state machine: pagination continuation prompts, answered with
// a space so long output keeps flowing.
type Options struct {
	More []*regexp.Regexp
}

// New builds an unconnected transport for the given method.
func New(method Method, opts Options) schema.Transport {
	switch method {
	case Telnet:
		return &telnetTransport{stream: stream{more: opts.More}}
	default:
		return &sshTransport{stream: stream{more: opts.More}}
	}
}

const inboxBuffer = 256

// stream is the read/write half shared by both transports: a publisher
// feeding a persistent inbox, so no line emitted between a Send and the
// following Expect can be lost.
type stream struct {
	name      string
	stdin     io.WriteCloser
	publisher *pubsub.Publisher
	inbox     chan schema.MessageEvent
	more      []*regexp.Regexp
}

func (s *stream) attach(name string, stdout, stderr io.Reader) {
	s.name = name
	s.publisher = pubsub.New(name)
	s.inbox = make(chan schema.MessageEvent, inboxBuffer)
	s.publisher.Subscribe(s.inbox)
	s.publisher.Attach(stdout, stderr)
}

func (s *stream) Send(line string) error {
	if s.stdin == nil {
		return &schema.ChannelError{Op: "send", Err: errNotConnected}
	}
	log.Debugf("%s tx: %s", s.name, line)
	if _, err := s.stdin.Write([]byte(line + "\r")); err != nil {
		return &schema.ChannelError{Op: "send", Err: err}
	}
	return nil
}

// Expect consumes lines until one of the patterns matches, returning the
// matched pattern's index and everything consumed. The timeout is an
// inactivity deadline: it resets on every received line, so a slowly
// streaming response does not trip it, only true silence does.
func (s *stream) Expect(ctx context.Context, patterns []*regexp.Regexp, timeout time.Duration) (schema.Match, error) {
	if s.publisher == nil {
		return schema.Match{Index: -1}, &schema.ChannelError{Op: "expect", Err: errNotConnected}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	match := schema.Match{Index: -1}
	consume := func(event schema.MessageEvent) bool {
		match.Lines = append(match.Lines, event.Message)
		timer.Reset(timeout)
		if event.Dir == schema.Stderr {
			return false
		}
		for i, p := range patterns {
			if p.MatchString(event.Message) {
				match.Index = i
				return true
			}
		}
		s.handleContinuation(event.Message)
		return false
	}
	for {
		// Buffered lines take priority over a closed channel: a match
		// that arrived before the close still counts.
		select {
		case event := <-s.inbox:
			if consume(event) {
				return match, nil
			}
			continue
		default:
		}
		select {
		case event := <-s.inbox:
			if consume(event) {
				return match, nil
			}
		case <-s.publisher.Done():
			return match, &schema.ChannelError{Op: "expect", Err: errChannelClosed}
		case <-ctx.Done():
			return match, ctx.Err()
		case <-timer.C:
			return match, &schema.ExpectTimeout{Op: "expect", Wait: timeout}
		}
	}
}

func (s *stream) handleContinuation(line string) {
	for _, con := range s.more {
		if con.MatchString(line) {
			log.Debugf("%s: answering continuation prompt", s.name)
			_ = s.Send(" ")
			return
		}
	}
}

type sentinelError string

func (e sentinelError) Error() string { return string(e) }

const (
	errNotConnected  = sentinelError("not connected")
	errChannelClosed = sentinelError("channel closed")
)
