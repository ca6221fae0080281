package ldpush

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/ldpush/config"
	"github.com/google/ldpush/schema"
	"github.com/google/ldpush/transport"
)

func TestConfigLines(t *testing.T) {
	text := "interface Loopback0\r\n ip address 10.0.0.1 255.255.255.255\n\n\ndescription x\n"
	assert.Equal(t, []string{
		"interface Loopback0",
		" ip address 10.0.0.1 255.255.255.255",
		"description x",
	}, ConfigLines(text))

	assert.Nil(t, ConfigLines("\n\n"))
}

func TestJobsForTargets(t *testing.T) {
	payload := schema.CommandPayload("show version")
	jobs := JobsForTargets([]string{"r1", "r2"}, ".net.example.com", "ios", payload)

	require.Len(t, jobs, 2)
	assert.Equal(t, "r1.net.example.com", jobs[0].Target.Host)
	assert.Equal(t, "r2.net.example.com", jobs[1].Target.Host)
	for _, j := range jobs {
		assert.Equal(t, "ios", j.Vendor)
		assert.Equal(t, payload, j.Payload)
	}
}

func TestJobsFromFiles(t *testing.T) {
	dir := t.TempDir()
	r1 := filepath.Join(dir, "router1")
	require.NoError(t, os.WriteFile(r1, []byte("hostname router1\nntp server 10.0.0.9\n"), 0o600))
	r2 := filepath.Join(dir, "router2")
	require.NoError(t, os.WriteFile(r2, []byte("hostname router2\n"), 0o600))

	jobs, err := JobsFromFiles([]string{r1, r2}, ".example.com", "junos")
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	assert.Equal(t, "router1.example.com", jobs[0].Target.Name())
	assert.Equal(t, schema.Config, jobs[0].Payload.Kind)
	assert.Equal(t, []string{"hostname router1", "ntp server 10.0.0.9"}, jobs[0].Payload.Lines)
	assert.Equal(t, "router2.example.com", jobs[1].Target.Name())
}

func TestJobsFromFilesMissing(t *testing.T) {
	_, err := JobsFromFiles([]string{filepath.Join(t.TempDir(), "absent")}, "", "ios")
	assert.Error(t, err)
}

func TestJoinFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.cfg")
	b := filepath.Join(dir, "b.cfg")
	require.NoError(t, os.WriteFile(a, []byte("first\n"), 0o600))
	require.NoError(t, os.WriteFile(b, []byte("second\n"), 0o600))

	joined, err := JoinFiles([]string{a, b})
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", joined)
}

func TestRunUnknownVendor(t *testing.T) {
	_, err := Run(context.Background(), "nosuch", transport.SSH, nil, schema.Credentials{}, config.Default(), nil)
	assert.Error(t, err)
}
