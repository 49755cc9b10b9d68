package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/shohag/slacker/internal/config"
	"github.com/shohag/slacker/internal/delivery"
	"github.com/shohag/slacker/internal/ratelimit"
)

var version = "0.1.0"

const (
	exitOK          = 0
	exitFailure     = 1
	exitInterrupted = 130
)

// exitError carries an exit code for failures that were already reported.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCmd()
	rootCmd.AddCommand(versionCmd())
	rootCmd.SetArgs(args)
	rootCmd.SetIn(stdin)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	cmd, err := rootCmd.ExecuteContextC(ctx)
	if err == nil {
		return exitOK
	}

	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}

	if cmd == nil {
		cmd = rootCmd
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	fmt.Fprint(stderr, cmd.UsageString())
	return exitFailure
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slacker",
		Short: "Post each line of stdin to a Slack incoming webhook",
		Long: `slacker reads standard input line by line and posts every line as a
message to a Slack-compatible incoming webhook, at most one post per interval.

The webhook comes from --url, or from the config file:

  slack_hook = "https://hooks.slack.com/services/..."

  [hooks]
  alerts = "https://hooks.slack.com/services/..."

Every flag can also be set through the environment, e.g. SLACKER_URL.`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE:          runRelay,
	}

	flags := cmd.Flags()
	flags.StringP("config", "c", config.DefaultConfigPath, "path to config file")
	flags.StringP("url", "u", "", "Slack webhook URL (config is not read)")
	flags.StringP("name", "n", "", "named webhook from the config's [hooks] table")
	flags.Bool("no-rate-limit", false, "ignore the rate limit and send as fast as possible")
	flags.Duration("interval", config.DefaultInterval, "minimum time between posts")
	flags.Duration("timeout", config.DefaultTimeout, "HTTP request timeout (0 for none)")
	flags.Bool("strip-ansi", false, "strip ANSI escape sequences from messages")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "plain", "log format (plain, console, json)")

	cmd.MarkFlagsMutuallyExclusive("url", "name")
	return cmd
}

func newViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	config.SetDefaults(v)
	v.SetEnvPrefix(config.EnvPrefix)
	v.SetEnvKeyReplacer(config.EnvKeyReplacer)
	v.AutomaticEnv()

	if err := v.BindPFlags(flags); err != nil {
		return nil, err
	}
	return v, nil
}

func runRelay(cmd *cobra.Command, args []string) error {
	v, err := newViper(cmd.Flags())
	if err != nil {
		return err
	}

	opts, err := config.LoadOptions(v)
	if err != nil {
		return err
	}

	log := setupLogger(opts.Logging, cmd.ErrOrStderr())

	ep, err := config.Resolve(opts)
	if err != nil {
		log.Error().Msg(diagnose(err))
		return &exitError{code: exitFailure}
	}

	var limiter delivery.Limiter
	if !opts.NoRateLimit {
		l := ratelimit.New(opts.Interval)
		log.Debug().Dur("interval", l.Interval()).Msg("rate limit enabled")
		limiter = l
	}

	sender := delivery.NewSender(opts.Timeout,
		delivery.WithUserAgent("slacker/"+version),
		delivery.WithStripANSI(opts.StripANSI),
	)

	relay := delivery.NewRelay(ep, sender, limiter, log)
	stats, err := relay.Run(cmd.Context(), cmd.InOrStdin())

	log.Debug().
		Int("read", stats.Read).
		Int("sent", stats.Sent).
		Int("failed", stats.Failed).
		Msg("relay finished")

	return exitFor(log, err)
}

func exitFor(log zerolog.Logger, err error) error {
	var rerr *delivery.ReadError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		log.Debug().Msg("interrupted")
		return &exitError{code: exitInterrupted}
	case errors.As(err, &rerr):
		log.Error().Msgf("Failed to read input (%v).", rerr.Err)
		return &exitError{code: exitFailure}
	default:
		log.Error().Msg(err.Error())
		return &exitError{code: exitFailure}
	}
}

// diagnose turns a resolution error into the line printed on stderr.
func diagnose(err error) string {
	var nf *config.HookNotFoundError
	switch {
	case errors.As(err, &nf):
		return fmt.Sprintf("Could not find Slack Webhook '%s'", nf.Name)
	case errors.Is(err, config.ErrNoDefaultHook):
		return "Missing default Slack Webhook"
	default:
		return fmt.Sprintf("Failed to read config (%v)", err)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "slacker v%s\n", version)
		},
	}
}
