// Command apitest exercises a running gemini-bridge server with sample and
// invalid prompts.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/shehryarbajwa/gemini-bridge/internal/client"
)

type options struct {
	url     string
	timeout time.Duration
	pause   time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "apitest",
		Short:         "Smoke-test a gemini-bridge server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSamples(cmd, opts)
		},
	}

	defaultURL := os.Getenv("API_URL")
	if defaultURL == "" {
		defaultURL = client.DefaultBaseURL
	}

	root.PersistentFlags().StringVarP(&opts.url, "url", "u", defaultURL, "server base URL (env API_URL)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 3*time.Minute, "per-request timeout")
	root.PersistentFlags().DurationVar(&opts.pause, "pause", 2*time.Second, "pause between sample prompts")

	run := &cobra.Command{
		Use:   "run",
		Short: "Send the sample prompts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSamples(cmd, opts)
		},
	}

	validation := &cobra.Command{
		Use:   "validation",
		Short: "Send prompts the server must reject",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(opts.url, opts.timeout)
			if n := c.RunValidation(cmd.Context(), cmd.OutOrStdout()); n > 0 {
				return fmt.Errorf("%d validation case(s) were not rejected as expected", n)
			}
			return nil
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show server and browser status",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := client.New(opts.url, opts.timeout).Status(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (browser %s)\n", res.Status, res.Message, res.BrowserStatus)
			return nil
		},
	}

	closeCmd := &cobra.Command{
		Use:   "close",
		Short: "Close the server's browser",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := client.New(opts.url, opts.timeout).CloseBrowser(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			return nil
		},
	}

	root.AddCommand(run, validation, status, closeCmd)
	return root
}

func runSamples(cmd *cobra.Command, opts *options) error {
	c := client.New(opts.url, opts.timeout)
	if n := c.RunSamples(cmd.Context(), cmd.OutOrStdout(), client.SamplePrompts, opts.pause); n > 0 {
		return fmt.Errorf("%d of %d prompt(s) failed", n, len(client.SamplePrompts))
	}
	return nil
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}
