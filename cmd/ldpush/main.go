// ldpush pushes configuration or commands to a fleet of network devices and
// reports what every device said.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"os/user"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/google/ldpush"
	"github.com/google/ldpush/config"
	"github.com/google/ldpush/dispatch"
	"github.com/google/ldpush/logger"
	"github.com/google/ldpush/profile"
	"github.com/google/ldpush/schema"
	"github.com/google/ldpush/transport"
)

var flags struct {
	targets       []string
	vendor        string
	command       string
	username      string
	suffix        string
	threads       int
	canary        bool
	fromFilenames bool
	verbose       bool
	useTelnet     bool
	configFile    string
	profileDir    string
}

var rootCmd = &cobra.Command{
	Use:   "ldpush [config files...]",
	Short: "Distribute configuration or commands to network elements",
	Long: `ldpush sends configuration files or a single command to a set of network
devices over SSH or telnet and gathers the results. Targets come from
--targets, or from the config file names themselves with
--devices-from-filenames.`,
	RunE:          run,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	f := rootCmd.Flags()
	f.StringSliceVarP(&flags.targets, "targets", "T", nil, "comma separated list of target devices")
	f.StringVarP(&flags.vendor, "vendor", "V", "", "vendor dialect, one of: "+strings.Join(profile.Names(), ", "))
	f.StringVarP(&flags.command, "command", "C", "", "issue a single command and collect the response instead of pushing config")
	f.StringVarP(&flags.username, "user", "u", "", "username for device logins (defaults to the local user)")
	f.StringVarP(&flags.suffix, "suffix", "s", "", "append suffix onto each target provided")
	f.IntVarP(&flags.threads, "threads", "t", 0, "maximum simultaneous device sessions")
	f.BoolVarP(&flags.canary, "canary", "c", false, "do everything possible, save for applying the config")
	f.BoolVarP(&flags.fromFilenames, "devices-from-filenames", "d", false, "use the configuration file names to determine the target devices")
	f.BoolVarP(&flags.verbose, "verbose", "v", false, "display full error messages and session chatter")
	f.BoolVar(&flags.useTelnet, "telnet", false, "connect over telnet instead of ssh")
	f.StringVar(&flags.configFile, "config", "", "options file (concurrency, timeouts, attempt_limit)")
	f.StringVar(&flags.profileDir, "profiles", "", "directory of extra vendor profile descriptors (*.yaml)")
}

func run(cmd *cobra.Command, args []string) error {
	if flags.verbose {
		logger.Verbose()
	}
	if flags.profileDir != "" {
		if err := loadProfiles(flags.profileDir); err != nil {
			return err
		}
	}
	if err := checkUsage(args); err != nil {
		return err
	}

	opts, err := config.Load(flags.configFile)
	if err != nil {
		return err
	}
	if flags.threads > 0 {
		opts.Concurrency = flags.threads
	}
	if flags.canary {
		opts.Canary = true
	}

	jobs, err := buildJobs(args)
	if err != nil {
		return err
	}

	creds, err := gatherCredentials()
	if err != nil {
		return err
	}

	method := transport.SSH
	if flags.useTelnet {
		method = transport.Telnet
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Ready to push %s to %d device(s)\n", describePayload(args), len(jobs))
	events := make(chan dispatch.Event, len(jobs))
	done := make(chan struct{})
	go progress(events, len(jobs), done)

	agg, err := ldpush.Run(ctx, flags.vendor, method, jobs, creds, opts, events)
	<-done
	if err != nil {
		return err
	}
	report(agg)
	return nil
}

func checkUsage(files []string) error {
	if flags.vendor == "" {
		return fmt.Errorf("no vendor defined, try the --vendor flag (i.e. --vendor ios)")
	}
	if len(flags.targets) == 0 && !flags.fromFilenames {
		return fmt.Errorf("no targets defined, try --targets")
	}
	if len(flags.targets) > 0 && flags.fromFilenames {
		return fmt.Errorf("--targets and --devices-from-filenames are mutually exclusive")
	}
	if len(files) == 0 && flags.command == "" {
		return fmt.Errorf("no configuration files provided; pass them as arguments or use --command")
	}
	if _, err := profile.Lookup(flags.vendor); err != nil {
		return err
	}
	return nil
}

func buildJobs(files []string) ([]schema.Job, error) {
	if flags.fromFilenames {
		return ldpush.JobsFromFiles(files, flags.suffix, flags.vendor)
	}
	var payload schema.Payload
	if flags.command != "" {
		payload = schema.CommandPayload(flags.command)
	} else {
		joined, err := ldpush.JoinFiles(files)
		if err != nil {
			return nil, err
		}
		payload = schema.ConfigPayload(ldpush.ConfigLines(joined))
	}
	return ldpush.JobsForTargets(flags.targets, flags.suffix, flags.vendor, payload), nil
}

func gatherCredentials() (schema.Credentials, error) {
	username := flags.username
	if username == "" {
		u, err := user.Current()
		if err != nil {
			return schema.Credentials{}, fmt.Errorf("no --user given and local user unknown: %w", err)
		}
		username = u.Username
	}
	fmt.Fprint(os.Stderr, "Password: ")
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return schema.Credentials{}, fmt.Errorf("reading password: %w", err)
	}
	return schema.Credentials{Username: username, Password: string(pw)}, nil
}

func loadProfiles(dir string) error {
	matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return err
	}
	for _, m := range matches {
		if _, err := profile.LoadFile(m); err != nil {
			return err
		}
	}
	return nil
}

func describePayload(files []string) string {
	if flags.command != "" {
		return fmt.Sprintf("command %q", flags.command)
	}
	return strings.Join(files, ", ")
}

func progress(events <-chan dispatch.Event, total int, done chan<- struct{}) {
	defer close(done)
	completed := 0
	for ev := range events {
		completed++
		fmt.Printf("[%d/%d] %s: %s (%.1fs)\n",
			completed, total, ev.Target.Name(), ev.Outcome, ev.Elapsed.Seconds())
	}
}

func report(agg *dispatch.Aggregate) {
	if flags.command != "" {
		for _, r := range agg.All() {
			if r.Outcome == schema.Success {
				fmt.Printf("#!# %s:%s #!#\n\n%s\n", r.Target.Name(), flags.command, r.Output)
			}
		}
	}

	var connectFail, configFail []schema.Result
	for _, r := range agg.Failed() {
		switch r.Outcome {
		case schema.DeviceError:
			configFail = append(configFail, r)
		default:
			connectFail = append(connectFail, r)
		}
	}

	if len(connectFail) > 0 {
		fmt.Printf("\nFailed to connect to:\n%s\n", joinTargets(connectFail))
		if flags.verbose {
			for _, r := range connectFail {
				fmt.Printf("#!# %s:%s #!#\n%v\n", r.Target.Name(), r.Outcome, r.Err)
			}
		}
	}
	if len(configFail) > 0 {
		fmt.Printf("\nSetting config failed:\n%s\n", joinTargets(configFail))
		if flags.verbose {
			for _, r := range configFail {
				fmt.Printf("#!# %s:%s #!#\n%v\n", r.Target.Name(), r.Outcome, r.Err)
				for i, l := range r.Lines {
					if l.Status == schema.LineRejected {
						fmt.Printf("line %d rejected: %s\n", i+1, l.Line)
					}
				}
			}
		}
	}
}

func joinTargets(results []schema.Result) string {
	names := make([]string, 0, len(results))
	for _, r := range results {
		names = append(names, r.Target.Name())
	}
	return strings.Join(names, ",")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
