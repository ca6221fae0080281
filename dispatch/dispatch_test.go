package dispatch

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/google/ldpush/config"
	"github.com/google/ldpush/profile"
	"github.com/google/ldpush/schema"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeTransport completes every exchange instantly with the device prompt,
// after an optional hold in Connect to simulate session duration. A gauge
// tracks how many fakes are connected at once.
type fakeTransport struct {
	hold       time.Duration
	connectErr error
	expectErr  error
	stale      []string
	gauge      *gauge
}

type gauge struct {
	mut     sync.Mutex
	current int
	peak    int
}

func (g *gauge) inc() {
	g.mut.Lock()
	defer g.mut.Unlock()
	g.current++
	if g.current > g.peak {
		g.peak = g.current
	}
}

func (g *gauge) dec() {
	g.mut.Lock()
	defer g.mut.Unlock()
	g.current--
}

func (g *gauge) max() int {
	g.mut.Lock()
	defer g.mut.Unlock()
	return g.peak
}

func (f *fakeTransport) Connect(ctx context.Context, target schema.Target, creds schema.Credentials, timeout time.Duration) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	if f.gauge != nil {
		f.gauge.inc()
	}
	if f.hold > 0 {
		select {
		case <-time.After(f.hold):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (f *fakeTransport) Send(line string) error { return nil }

func (f *fakeTransport) Expect(ctx context.Context, patterns []*regexp.Regexp, timeout time.Duration) (schema.Match, error) {
	if f.expectErr != nil {
		return schema.Match{Index: -1, Lines: f.stale}, f.expectErr
	}
	return schema.Match{Index: 0, Lines: []string{"host#"}}, nil
}

func (f *fakeTransport) Close() error {
	if f.gauge != nil && f.connectErr == nil {
		f.gauge.dec()
		f.gauge = nil
	}
	return nil
}

// flatProfile needs no escalation: one state serves commands and config.
func flatProfile() *profile.Profile {
	return &profile.Profile{
		Name:         "flat",
		States:       []profile.State{{Name: "exec", Prompt: regexp.MustCompile(`# $`)}},
		CommandState: "exec",
		ConfigState:  "exec",
	}
}

func testOptions() config.Options {
	opts := config.Default()
	opts.ConnectTimeout = time.Second
	opts.ExpectTimeout = time.Second
	opts.JobTimeout = 5 * time.Second
	return opts
}

func makeJobs(n int) []schema.Job {
	jobs := make([]schema.Job, 0, n)
	for i := 0; i < n; i++ {
		jobs = append(jobs, schema.Job{
			Target:  schema.Target{Host: fmt.Sprintf("device%d", i)},
			Payload: schema.CommandPayload("show version"),
			Vendor:  "flat",
		})
	}
	return jobs
}

func TestOneResultPerTarget(t *testing.T) {
	jobs := makeJobs(10)
	// Half the fleet fails to connect; every target still gets a result.
	var i atomic.Int32
	factory := func() schema.Transport {
		if i.Add(1)%2 == 0 {
			return &fakeTransport{connectErr: &schema.ConnectError{Host: "x", Err: assert.AnError}}
		}
		return &fakeTransport{}
	}
	c := New(flatProfile(), schema.Credentials{}, testOptions(), factory)

	agg, err := c.Run(context.Background(), jobs, nil)
	require.NoError(t, err)

	assert.Equal(t, len(jobs), agg.Len())
	for _, job := range jobs {
		_, ok := agg.Get(job.Target.Name())
		assert.True(t, ok, "missing result for %s", job.Target.Name())
	}
}

func TestFaultIsolation(t *testing.T) {
	byHost := map[string]*fakeTransport{
		"good": {},
		"bad":  {connectErr: &schema.ConnectError{Host: "bad", Err: assert.AnError}},
	}
	var mut sync.Mutex
	queue := []string{"bad", "good"}
	factory := func() schema.Transport {
		mut.Lock()
		defer mut.Unlock()
		tr := byHost[queue[0]]
		queue = queue[1:]
		return tr
	}
	jobs := []schema.Job{
		{Target: schema.Target{Host: "bad"}, Payload: schema.CommandPayload("show"), Vendor: "flat"},
		{Target: schema.Target{Host: "good"}, Payload: schema.CommandPayload("show"), Vendor: "flat"},
	}
	opts := testOptions()
	opts.Concurrency = 1 // serialize so the factory order is deterministic
	c := New(flatProfile(), schema.Credentials{}, opts, factory)

	agg, err := c.Run(context.Background(), jobs, nil)
	require.NoError(t, err)

	good, ok := agg.Get("good")
	require.True(t, ok)
	assert.Equal(t, schema.Success, good.Outcome)
	bad, ok := agg.Get("bad")
	require.True(t, ok)
	assert.Equal(t, schema.TransportFailure, bad.Outcome)
}

func TestConcurrencyLimitRespected(t *testing.T) {
	const hold = 50 * time.Millisecond
	g := &gauge{}
	factory := func() schema.Transport {
		return &fakeTransport{hold: hold, gauge: g}
	}
	opts := testOptions()
	opts.Concurrency = 2
	c := New(flatProfile(), schema.Credentials{}, opts, factory)

	start := time.Now()
	agg, err := c.Run(context.Background(), makeJobs(10), nil)
	elapsed := time.Since(start)
	require.NoError(t, err)

	assert.Equal(t, 10, agg.Len())
	assert.LessOrEqual(t, g.max(), 2, "more than 2 sessions in flight")
	// 10 jobs of 50ms each through 2 workers cannot finish faster than
	// ceil(10/2) * 50ms.
	assert.GreaterOrEqual(t, elapsed, 5*hold)
}

func TestRetryUsesFreshSession(t *testing.T) {
	var built atomic.Int32
	factory := func() schema.Transport {
		if built.Add(1) == 1 {
			// First attempt emits residue and dies mid-expect.
			return &fakeTransport{
				stale:     []string{"STALE OUTPUT FROM FIRST ATTEMPT"},
				expectErr: &schema.ChannelError{Op: "expect", Err: assert.AnError},
			}
		}
		return &fakeTransport{}
	}
	opts := testOptions()
	opts.AttemptLimit = 2
	c := New(flatProfile(), schema.Credentials{}, opts, factory)

	agg, err := c.Run(context.Background(), makeJobs(1), nil)
	require.NoError(t, err)

	res, ok := agg.Get("device0")
	require.True(t, ok)
	assert.Equal(t, schema.Success, res.Outcome)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, int32(2), built.Load(), "retry must build a fresh transport")
	assert.NotContains(t, res.Output, "STALE", "prior attempt's output leaked into the result")
}

func TestDeviceErrorIsNotRetried(t *testing.T) {
	var built atomic.Int32
	rejecting := regexp.MustCompile(`% Invalid`)
	p := flatProfile()
	p.Error = rejecting
	factory := func() schema.Transport {
		built.Add(1)
		return &fakeTransport{
			expectErr: &schema.RejectError{Response: "% Invalid input", Line: -1},
		}
	}
	opts := testOptions()
	opts.AttemptLimit = 3
	c := New(p, schema.Credentials{}, opts, factory)

	agg, err := c.Run(context.Background(), makeJobs(1), nil)
	require.NoError(t, err)

	res, _ := agg.Get("device0")
	assert.Equal(t, schema.DeviceError, res.Outcome)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, int32(1), built.Load())
}

func TestCancellationDrainsQuickly(t *testing.T) {
	factory := func() schema.Transport {
		return &fakeTransport{hold: time.Minute}
	}
	opts := testOptions()
	opts.Concurrency = 2
	opts.JobTimeout = 2 * time.Minute
	c := New(flatProfile(), schema.Credentials{}, opts, factory)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	agg, err := c.Run(ctx, makeJobs(6), nil)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 10*time.Second, "cancellation did not interrupt in-flight sessions")
	assert.Equal(t, 6, agg.Len(), "queued jobs must still be recorded")
	for _, r := range agg.All() {
		assert.Equal(t, schema.Canceled, r.Outcome, "%s", r.Target.Name())
	}
}

func TestCompletionEvents(t *testing.T) {
	factory := func() schema.Transport { return &fakeTransport{} }
	c := New(flatProfile(), schema.Credentials{}, testOptions(), factory)

	jobs := makeJobs(5)
	events := make(chan Event, len(jobs))
	agg, err := c.Run(context.Background(), jobs, events)
	require.NoError(t, err)
	require.Equal(t, 5, agg.Len())

	count := 0
	for ev := range events {
		assert.Equal(t, schema.Success, ev.Outcome)
		assert.Equal(t, 1, ev.Attempt)
		count++
	}
	assert.Equal(t, 5, count)
}

func TestInvalidOptions(t *testing.T) {
	opts := testOptions()
	opts.Concurrency = 0
	c := New(flatProfile(), schema.Credentials{}, opts, func() schema.Transport { return &fakeTransport{} })
	_, err := c.Run(context.Background(), makeJobs(1), nil)
	assert.Error(t, err)
}
