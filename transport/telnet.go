package transport

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"sync"
	"time"

	gote "github.com/morganhein/go-telnet"

	"github.com/google/ldpush/schema"
)

var (
	telnetLogin    = regexp.MustCompile(`([Ll]ogin|[Uu]sername):? *$`)
	telnetPassword = regexp.MustCompile(`[Pp]assword:? *$`)
	// Any of the usual cli prompt tails; the profile takes over once the
	// session is logged in.
	telnetPrompt = regexp.MustCompile(`> *$|# *$|\$ *$`)
)

type telnetTransport struct {
	stream
	conn   net.Conn
	closed sync.Once
}

// Connect dials the telnet port and performs the login/password dance.
// Telnet has no authentication of its own, so a rejected login only shows up
// as the device re-prompting instead of presenting a cli prompt.
func (t *telnetTransport) Connect(ctx context.Context, target schema.Target, creds schema.Credentials, timeout time.Duration) error {
	port := target.Port
	if port == 0 {
		port = 23
	}
	addr := fmt.Sprintf("%v:%v", target.Host, port)

	conn, err := dialTelnet(ctx, addr, timeout)
	if err != nil {
		return &schema.ConnectError{Host: target.Host, Err: err}
	}
	t.conn = conn
	t.stdin = conn
	t.attach(target.Name(), conn, nil)
	log.Debugf("%s: TCP connected, trying to login", target.Name())

	if err := t.login(ctx, target.Host, creds, timeout); err != nil {
		t.Close()
		return err
	}
	log.Infof("%s: telnet session created", target.Name())
	return nil
}

func (t *telnetTransport) login(ctx context.Context, host string, creds schema.Credentials, timeout time.Duration) error {
	// No credential has been offered before the first prompt appears, so a
	// failure here is the channel's fault, not the login's. Once the username
	// goes out, a missing prompt means the device rejected us.
	if _, err := t.Expect(ctx, []*regexp.Regexp{telnetLogin}, timeout); err != nil {
		return fmt.Errorf("waiting for login prompt: %w", err)
	}
	if err := t.Send(creds.Username); err != nil {
		return err
	}
	if _, err := t.Expect(ctx, []*regexp.Regexp{telnetPassword}, timeout); err != nil {
		return &schema.AuthError{Host: host, Err: fmt.Errorf("waiting for password prompt: %w", err)}
	}
	if err := t.Send(creds.Password); err != nil {
		return err
	}
	if _, err := t.Expect(ctx, []*regexp.Regexp{telnetPrompt}, timeout); err != nil {
		return &schema.AuthError{Host: host, Err: fmt.Errorf("no prompt after login: %w", err)}
	}
	return nil
}

func (t *telnetTransport) Close() error {
	t.closed.Do(func() {
		if t.conn == nil {
			return
		}
		// Ask for a clean logout, then tear the connection down regardless.
		_, _ = t.conn.Write([]byte("exit\r"))
		t.conn.Close()
	})
	return nil
}

type dialed struct {
	conn net.Conn
	err  error
}

// dialTelnet runs the dial in a goroutine so it honors both the timeout and
// caller cancellation; the telnet library offers no context-aware dial.
func dialTelnet(ctx context.Context, addr string, timeout time.Duration) (net.Conn, error) {
	ch := make(chan dialed, 1)
	go func() {
		conn, err := gote.Dial("tcp", addr)
		ch <- dialed{conn, err}
	}()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case d := <-ch:
		return d.conn, d.err
	case <-ctx.Done():
		go discard(ch)
		return nil, ctx.Err()
	case <-timer.C:
		go discard(ch)
		return nil, fmt.Errorf("dial %s: timed out after %v", addr, timeout)
	}
}

func discard(ch chan dialed) {
	if d := <-ch; d.conn != nil {
		d.conn.Close()
	}
}
