// inferctl is a command line client for the gateway: it submits
// sequences, fetches results, and can wait for a job to finish.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"infergate/internal/client"
	"infergate/internal/job"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: inferctl <command> [flags]

commands:
  submit -sequence <seq>       submit a sequence for processing
  get    -job <handle>         fetch the current state of a job
  wait   -job <handle>         poll until the job finishes

common flags:
  -addr <url>      gateway address (default http://localhost:8080, or INFERGATE_ADDR)
  -api-key <key>   bearer token (or INFERGATE_API_KEY)`)
}

func run(args []string) error {
	if len(args) < 1 {
		usage()
		return fmt.Errorf("a command is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch args[0] {
	case "submit":
		return runSubmit(ctx, args[1:])
	case "get":
		return runGet(ctx, args[1:])
	case "wait":
		return runWait(ctx, args[1:])
	default:
		usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func commonFlags(fs *flag.FlagSet) (addr, apiKey *string) {
	defaultAddr := os.Getenv("INFERGATE_ADDR")
	if defaultAddr == "" {
		defaultAddr = "http://localhost:8080"
	}
	addr = fs.String("addr", defaultAddr, "gateway address")
	apiKey = fs.String("api-key", os.Getenv("INFERGATE_API_KEY"), "bearer token")
	return addr, apiKey
}

func runSubmit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	addr, apiKey := commonFlags(fs)
	sequence := fs.String("sequence", "", "amino acid sequence to submit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *sequence == "" {
		return fmt.Errorf("-sequence is required")
	}

	c := client.New(*addr, *apiKey, 30*time.Second)
	sub, err := c.Submit(ctx, *sequence)
	if err != nil {
		return err
	}
	return printJSON(sub)
}

func runGet(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	addr, apiKey := commonFlags(fs)
	handle := fs.String("job", "", "job id or store URI")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *handle == "" {
		return fmt.Errorf("-job is required")
	}

	c := client.New(*addr, *apiKey, 30*time.Second)
	res, err := c.Get(ctx, *handle)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func runWait(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("wait", flag.ExitOnError)
	addr, apiKey := commonFlags(fs)
	handle := fs.String("job", "", "job id or store URI")
	interval := fs.Duration("interval", 30*time.Second, "delay between probes")
	maxAttempts := fs.Int("max-attempts", 120, "probe budget before giving up")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *handle == "" {
		return fmt.Errorf("-job is required")
	}

	c := client.New(*addr, *apiKey, 30*time.Second)
	poller := job.NewPoller(c, job.PollerConfig{
		Interval:    *interval,
		MaxAttempts: *maxAttempts,
	}, slog.Default())

	outcome, err := poller.Poll(ctx, *handle)
	if err != nil {
		return err
	}

	switch outcome.State {
	case job.StateCompleted, job.StateFailed:
		if err := printJSON(outcome.Result); err != nil {
			return err
		}
		if outcome.State == job.StateFailed {
			return fmt.Errorf("job failed after %d probe(s)", outcome.Attempts)
		}
		return nil
	case job.StateTimedOut:
		return fmt.Errorf("gave up after %d probe(s); the job may still complete", outcome.Attempts)
	default:
		return fmt.Errorf("polling ended in state %s", outcome.State)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
