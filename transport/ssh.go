package transport

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/ldpush/schema"
	"golang.org/x/crypto/ssh"
)

type sshTransport struct {
	stream
	client  *ssh.Client
	session *ssh.Session
	closed  sync.Once
}

// Connect dials, authenticates and starts an interactive shell with a pty.
// SSH performs authentication during the handshake, so credential rejection
// surfaces here rather than as a separate login step.
func (t *sshTransport) Connect(ctx context.Context, target schema.Target, creds schema.Credentials, timeout time.Duration) error {
	port := target.Port
	if port == 0 {
		port = 22
	}
	addr := fmt.Sprint(target.Host, ":", port)
	cfg := clientConfig(creds, timeout)

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return &schema.ConnectError{Host: target.Host, Err: err}
	}
	// Bound the handshake too; a device that accepts the TCP connection but
	// never completes key exchange must not hang the job.
	_ = conn.SetDeadline(time.Now().Add(timeout))
	cc, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		if strings.Contains(err.Error(), "unable to authenticate") {
			return &schema.AuthError{Host: target.Host, Err: err}
		}
		return &schema.ConnectError{Host: target.Host, Err: err}
	}
	_ = conn.SetDeadline(time.Time{})
	t.client = ssh.NewClient(cc, chans, reqs)

	t.session, err = t.client.NewSession()
	if err != nil {
		t.client.Close()
		return &schema.ConnectError{Host: target.Host, Err: fmt.Errorf("creating session: %w", err)}
	}
	stdin, err := t.session.StdinPipe()
	if err != nil {
		return t.connectFailed(target.Host, err)
	}
	stdout, err := t.session.StdoutPipe()
	if err != nil {
		return t.connectFailed(target.Host, err)
	}
	stderr, err := t.session.StderrPipe()
	if err != nil {
		return t.connectFailed(target.Host, err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          0,     // disable echoing
		ssh.TTY_OP_ISPEED: 14400, // input speed = 14.4kbaud
		ssh.TTY_OP_OSPEED: 14400, // output speed = 14.4kbaud
	}
	if err := t.session.RequestPty("xterm", 0, 80, modes); err != nil {
		return t.connectFailed(target.Host, fmt.Errorf("requesting pty: %w", err))
	}
	if err := t.session.Shell(); err != nil {
		return t.connectFailed(target.Host, fmt.Errorf("starting shell: %w", err))
	}

	t.stdin = stdin
	t.attach(target.Name(), stdout, stderr)
	log.Infof("%s: SSH session created", target.Name())
	return nil
}

func (t *sshTransport) connectFailed(host string, err error) error {
	t.session.Close()
	t.client.Close()
	return &schema.ConnectError{Host: host, Err: err}
}

func (t *sshTransport) Close() error {
	t.closed.Do(func() {
		if t.stdin != nil {
			t.stdin.Close()
		}
		if t.session != nil {
			t.session.Close()
		}
		if t.client != nil {
			t.client.Close()
		}
	})
	return nil
}

func clientConfig(creds schema.Credentials, timeout time.Duration) *ssh.ClientConfig {
	cfg := &ssh.ClientConfig{
		User:            creds.Username,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}
	// Network elements commonly run old SSH stacks; advertise the legacy
	// ciphers alongside the defaults or half the fleet refuses key exchange.
	cfg.Ciphers = []string{
		"aes128-ctr",
		"aes192-ctr",
		"aes256-ctr",
		"aes128-gcm@openssh.com",
		"aes128-cbc",
		"aes256-cbc",
		"3des-cbc",
	}
	if creds.Password != "" {
		cfg.Auth = append(cfg.Auth, ssh.Password(creds.Password))
	}
	if creds.KeyFile != "" {
		if key := publicKeyFile(creds.KeyFile); key != nil {
			cfg.Auth = append(cfg.Auth, key)
		}
	}
	return cfg
}

func publicKeyFile(file string) ssh.AuthMethod {
	buffer, err := os.ReadFile(file)
	if err != nil {
		return nil
	}
	key, err := ssh.ParsePrivateKey(buffer)
	if err != nil {
		return nil
	}
	return ssh.PublicKeys(key)
}
