// Package dispatch fans jobs out to bounded concurrent device sessions and
// collects exactly one result per target. One device failing, timing out or
// hanging never disturbs the others.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/google/ldpush/config"
	"github.com/google/ldpush/logger"
	"github.com/google/ldpush/profile"
	"github.com/google/ldpush/schema"
	"github.com/google/ldpush/session"
	"github.com/google/ldpush/transport"
)

var log schema.Logger

func init() {
	log = logger.Log
}

// Event is one per-target completion notification, emitted as results land.
type Event struct {
	Target  schema.Target
	Outcome schema.Outcome
	Attempt int
	Elapsed time.Duration
}

// TransportFactory builds a fresh, unconnected transport. Every attempt gets
// its own so no session state survives a retry.
type TransportFactory func() schema.Transport

// Coordinator runs a set of jobs against one vendor profile with shared
// fleet credentials.
type Coordinator struct {
	profile *profile.Profile
	creds   schema.Credentials
	opts    config.Options
	factory TransportFactory
}

// New builds a coordinator. A nil factory gets the default SSH transport
// wired to the profile's continuation patterns.
func New(p *profile.Profile, creds schema.Credentials, opts config.Options, factory TransportFactory) *Coordinator {
	if factory == nil {
		factory = func() schema.Transport {
			return transport.New(transport.SSH, transport.Options{More: p.More})
		}
	}
	return &Coordinator{profile: p, creds: creds, opts: opts, factory: factory}
}

// Run executes every job, at most opts.Concurrency in flight at a time, and
// returns the completed aggregate. Completion events are offered on events
// as they happen when the channel is non-nil; a full channel drops the event
// rather than stalling a worker. The channel is closed when the run ends.
//
// On cancellation, in-flight jobs close their transports and report, and
// queued jobs are recorded as canceled without an attempt, so the aggregate
// still holds one result per target.
func (c *Coordinator) Run(ctx context.Context, jobs []schema.Job, events chan<- Event) (*Aggregate, error) {
	if events != nil {
		defer close(events)
	}
	if err := c.opts.Validate(); err != nil {
		return nil, fmt.Errorf("dispatch: %w", err)
	}

	agg := NewAggregate()
	sem := semaphore.NewWeighted(int64(c.opts.Concurrency))
	var wg sync.WaitGroup

	for _, job := range jobs {
		if err := sem.Acquire(ctx, 1); err != nil {
			c.record(agg, events, canceledResult(job))
			continue
		}
		wg.Add(1)
		go func(job schema.Job) {
			defer wg.Done()
			defer sem.Release(1)
			c.record(agg, events, c.runJob(ctx, job))
		}(job)
	}
	wg.Wait()
	return agg, nil
}

// runJob runs one job to completion, retrying transient failures with a
// fresh driver and transport up to the attempt limit. Device rejections and
// credential failures are terminal: the device will answer the same way
// again.
func (c *Coordinator) runJob(ctx context.Context, job schema.Job) schema.Result {
	var res schema.Result
	for attempt := 1; ; attempt++ {
		res = c.attempt(ctx, job)
		res.Attempts = attempt
		if res.Outcome == schema.Success || !res.Outcome.Transient() {
			break
		}
		if attempt >= c.opts.AttemptLimit || ctx.Err() != nil {
			break
		}
		log.Infof("%s: attempt %d ended in %s, retrying", job.Target.Name(), attempt, res.Outcome)
	}
	return res
}

func (c *Coordinator) attempt(ctx context.Context, job schema.Job) schema.Result {
	jctx := ctx
	cancel := context.CancelFunc(func() {})
	if c.opts.JobTimeout > 0 {
		jctx, cancel = context.WithTimeout(ctx, c.opts.JobTimeout)
	}
	defer cancel()

	drv := session.New(c.profile, c.factory(), session.Options{
		ConnectTimeout: c.opts.ConnectTimeout,
		ExpectTimeout:  c.opts.ExpectTimeout,
		Canary:         c.opts.Canary,
	})
	res := drv.Run(jctx, job, c.creds)
	// The job deadline expiring surfaces as context.DeadlineExceeded inside
	// the session; parent cancellation must not be reported as a timeout.
	if res.Outcome == schema.Timeout && ctx.Err() == context.Canceled {
		res.Outcome = schema.Canceled
	}
	return res
}

func (c *Coordinator) record(agg *Aggregate, events chan<- Event, res schema.Result) {
	agg.add(res)
	if events == nil {
		return
	}
	ev := Event{
		Target:  res.Target,
		Outcome: res.Outcome,
		Attempt: res.Attempts,
		Elapsed: res.Duration,
	}
	select {
	case events <- ev:
	default:
	}
}

func canceledResult(job schema.Job) schema.Result {
	return schema.Result{
		Target:  job.Target,
		Outcome: schema.Canceled,
		Err:     context.Canceled,
	}
}
