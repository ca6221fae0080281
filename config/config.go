// Package config holds the run options passed explicitly into the
// coordinator. Nothing reads these from ambient globals; load once, hand the
// value down.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Options is the immutable configuration surface for one push run.
type Options struct {
	// Concurrency caps simultaneous device sessions.
	Concurrency int
	// ConnectTimeout bounds connect plus login per attempt.
	ConnectTimeout time.Duration
	// ExpectTimeout is the inactivity deadline for each expected pattern.
	ExpectTimeout time.Duration
	// JobTimeout bounds one whole attempt against one device.
	JobTimeout time.Duration
	// AttemptLimit is the total attempts per job; only transient outcomes
	// (timeout, transport failure) are retried.
	AttemptLimit int
	// Canary walks every session without applying configuration.
	Canary bool
}

func Default() Options {
	return Options{
		Concurrency:    20,
		ConnectTimeout: 30 * time.Second,
		ExpectTimeout:  10 * time.Second,
		JobTimeout:     3 * time.Minute,
		AttemptLimit:   1,
	}
}

// Load reads options from an optional config file and LDPUSH_* environment
// variables, layered over the defaults.
func Load(path string) (Options, error) {
	v := viper.New()
	def := Default()
	v.SetDefault("concurrency", def.Concurrency)
	v.SetDefault("connect_timeout", def.ConnectTimeout)
	v.SetDefault("expect_timeout", def.ExpectTimeout)
	v.SetDefault("job_timeout", def.JobTimeout)
	v.SetDefault("attempt_limit", def.AttemptLimit)
	v.SetDefault("canary", false)
	v.SetEnvPrefix("ldpush")
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Options{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}
	opts := Options{
		Concurrency:    v.GetInt("concurrency"),
		ConnectTimeout: v.GetDuration("connect_timeout"),
		ExpectTimeout:  v.GetDuration("expect_timeout"),
		JobTimeout:     v.GetDuration("job_timeout"),
		AttemptLimit:   v.GetInt("attempt_limit"),
		Canary:         v.GetBool("canary"),
	}
	return opts, opts.Validate()
}

func (o Options) Validate() error {
	if o.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", o.Concurrency)
	}
	if o.ConnectTimeout <= 0 || o.ExpectTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if o.AttemptLimit < 1 {
		return fmt.Errorf("attempt_limit must be at least 1, got %d", o.AttemptLimit)
	}
	return nil
}
